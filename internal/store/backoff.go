package store

import (
	"math"
	"time"
)

// Backoff strategies
const (
	BackoffNone        = "none"
	BackoffFixed       = "fixed"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// CalculateBackoff returns the delay before the next retry attempt.
// attempt starts at 1.
func CalculateBackoff(strategy string, attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration

	switch strategy {
	case BackoffNone:
		d = 0
	case BackoffFixed:
		d = base
	case BackoffLinear:
		d = base * time.Duration(attempt)
	default:
		f := float64(base) * math.Pow(2, float64(attempt-1))
		if f >= math.MaxInt64 {
			d = math.MaxInt64
		} else {
			d = time.Duration(f)
		}
	}

	if maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return d
}
