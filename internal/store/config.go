package store

import "time"

// Config bounds the arguments the engine accepts.
type Config struct {
	MinPriority     int64
	MaxPriority     int64
	MaxTTR          time.Duration
	MaxDelay        time.Duration
	MaxQueueNameLen int
	MaxPayloadSize  int // bytes, 0 = unlimited
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		MinPriority:     0,
		MaxPriority:     1<<32 - 1,
		MaxTTR:          24 * time.Hour,
		MaxDelay:        365 * 24 * time.Hour,
		MaxQueueNameLen: 200,
		MaxPayloadSize:  256 << 10,
	}
}
