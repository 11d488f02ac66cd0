package store

import "time"

// Observer receives notifications about completed operations. Methods are
// called synchronously after the applier returns and must not block.
type Observer interface {
	OpCompleted(op OpType, elapsed time.Duration, err error)
	Maintenance(queue string, promoted, recovered int)
}

type nopObserver struct{}

func (nopObserver) OpCompleted(OpType, time.Duration, error) {}
func (nopObserver) Maintenance(string, int, int)             {}
