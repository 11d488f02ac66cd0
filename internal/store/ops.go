package store

import (
	"context"
	"fmt"
)

// OpType identifies an engine operation.
type OpType uint8

const (
	OpEnqueue    OpType = 1
	OpDequeue    OpType = 2
	OpDelete     OpType = 3
	OpRelease    OpType = 4
	OpBury       OpType = 5
	OpKick       OpType = 6
	OpWipe       OpType = 7
	OpPeek       OpType = 8
	OpStats      OpType = 9
	OpListQueues OpType = 10
)

var opNames = map[OpType]string{
	OpEnqueue:    "enqueue",
	OpDequeue:    "dequeue",
	OpDelete:     "delete",
	OpRelease:    "release",
	OpBury:       "bury",
	OpKick:       "kick",
	OpWipe:       "wipe",
	OpPeek:       "peek",
	OpStats:      "stats",
	OpListQueues: "queues",
}

func (t OpType) String() string {
	if n, ok := opNames[t]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(t))
}

// Mutating reports whether the operation may change stored state.
func (t OpType) Mutating() bool {
	switch t {
	case OpPeek, OpStats, OpListQueues:
		return false
	}
	return true
}

// OpResult wraps the result of an Apply.
type OpResult struct {
	Data any
	Err  error
}

// Applier executes one operation as a single indivisible step.
type Applier interface {
	Apply(ctx context.Context, opType OpType, data any) *OpResult
}

// Pre-computed data structs for each operation.
// All timestamps are supplied by the caller (no time.Now() in an applier).
// Durations and times are milliseconds.

type EnqueueOp struct {
	Queue    string
	Payload  []byte
	Priority int64
	TTRMs    int64
	DelayMs  int64
	NowMs    int64
}

type DequeueOp struct {
	Queue string
	NowMs int64
}

type DeleteOp struct {
	JobID string
}

type ReleaseOp struct {
	JobID    string
	Priority int64
	DelayMs  int64
	NowMs    int64
}

type BuryOp struct {
	JobID  string
	Reason string
}

type KickOp struct {
	Queue string
	N     int
}

type WipeOp struct {
	Scope WipeScope
}

type PeekOp struct {
	JobID string
}

type StatsOp struct {
	Queue string
}

type ListQueuesOp struct{}

// DequeueResult is the Data of an OpDequeue result. Job is nil when the
// queue had nothing ready.
type DequeueResult struct {
	Job       *Job
	Promoted  int // delayed jobs moved to ready by maintenance
	Recovered int // expired reservations moved back to ready
}
