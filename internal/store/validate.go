package store

import (
	"math"
	"strings"
	"time"
)

const (
	// MaxDurationMs is the largest millisecond count a time.Duration holds.
	MaxDurationMs = math.MaxInt64 / int64(time.Millisecond)

	// MaxNowMs is 9999-12-31T23:59:59.999Z. Keeping now below it leaves
	// now+ttr and now+delay far from int64 overflow.
	MaxNowMs int64 = 253402300799999
)

// ValidateNowMs checks a current time in Unix milliseconds.
func ValidateNowMs(ms int64) error {
	if ms < 0 || ms > MaxNowMs {
		return NewInvalidArgument("now %d outside [0, %d] ms", ms, MaxNowMs)
	}
	return nil
}

// MillisDuration converts a millisecond count from the wire to a
// time.Duration, rejecting counts that would overflow.
func MillisDuration(name string, ms int64) (time.Duration, error) {
	if ms > MaxDurationMs || ms < -MaxDurationMs {
		return 0, NewInvalidArgument("%s %d ms out of range", name, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ValidateQueue checks a queue name.
func (c Config) ValidateQueue(queue string) error {
	if queue == "" {
		return NewInvalidArgument("queue name is required")
	}
	if c.MaxQueueNameLen > 0 && len(queue) > c.MaxQueueNameLen {
		return NewInvalidArgument("queue name exceeds %d bytes", c.MaxQueueNameLen)
	}
	if strings.IndexByte(queue, 0) >= 0 {
		return NewInvalidArgument("queue name must not contain NUL")
	}
	return nil
}

// ValidatePriority checks a priority against the configured bound.
func (c Config) ValidatePriority(p int64) error {
	if p < c.MinPriority || p > c.MaxPriority {
		return NewInvalidArgument("priority %d outside [%d, %d]", p, c.MinPriority, c.MaxPriority)
	}
	return nil
}

// ValidateDelay checks a delay in milliseconds.
func (c Config) ValidateDelay(delayMs int64) error {
	if delayMs < 0 {
		return NewInvalidArgument("delay must be >= 0")
	}
	if c.MaxDelay > 0 && delayMs > c.MaxDelay.Milliseconds() {
		return NewInvalidArgument("delay exceeds %s", c.MaxDelay)
	}
	return nil
}

// ValidateEnqueue checks every argument of an enqueue.
func (c Config) ValidateEnqueue(op EnqueueOp) error {
	if err := c.ValidateQueue(op.Queue); err != nil {
		return err
	}
	if err := ValidateNowMs(op.NowMs); err != nil {
		return err
	}
	if op.TTRMs <= 0 {
		return NewInvalidArgument("ttr must be >= 1ms")
	}
	if c.MaxTTR > 0 && op.TTRMs > c.MaxTTR.Milliseconds() {
		return NewInvalidArgument("ttr exceeds %s", c.MaxTTR)
	}
	if err := c.ValidateDelay(op.DelayMs); err != nil {
		return err
	}
	if err := c.ValidatePriority(op.Priority); err != nil {
		return err
	}
	if c.MaxPayloadSize > 0 && len(op.Payload) > c.MaxPayloadSize {
		return NewInvalidArgument("payload exceeds %d bytes", c.MaxPayloadSize)
	}
	return nil
}

// ValidateRelease checks the arguments of a release.
func (c Config) ValidateRelease(op ReleaseOp) error {
	if err := ValidateNowMs(op.NowMs); err != nil {
		return err
	}
	if err := c.ValidatePriority(op.Priority); err != nil {
		return err
	}
	return c.ValidateDelay(op.DelayMs)
}

// ValidateKick checks the arguments of a kick.
func (c Config) ValidateKick(op KickOp) error {
	if err := c.ValidateQueue(op.Queue); err != nil {
		return err
	}
	if op.N < 0 {
		return NewInvalidArgument("kick count must be >= 0")
	}
	return nil
}

// ValidateWipe checks a wipe scope.
func (c Config) ValidateWipe(op WipeOp) error {
	if op.Scope.IsZero() {
		return NewInvalidArgument("wipe scope is required")
	}
	if op.Scope.All() {
		return nil
	}
	return c.ValidateQueue(op.Scope.Queue())
}

// durationMs converts a duration to whole milliseconds, truncating.
func durationMs(d time.Duration) int64 {
	return d.Milliseconds()
}
