package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle state of a job.
type State string

// Job states
const (
	StateDelayed  State = "delayed"
	StateReady    State = "ready"
	StateReserved State = "reserved"
	StateBuried   State = "buried"
)

// States lists every job state in lifecycle order.
var States = []State{StateDelayed, StateReady, StateReserved, StateBuried}

// Valid reports whether s is one of the four job states.
func (s State) Valid() bool {
	switch s {
	case StateDelayed, StateReady, StateReserved, StateBuried:
		return true
	}
	return false
}

// Job represents a job in the system. ReserveDeadline is set only while
// the job is reserved and BuryReason only while it is buried.
type Job struct {
	ID              string
	Queue           string
	Payload         []byte
	Priority        int64
	TTR             time.Duration
	CreatedAt       time.Time
	ReadyAt         time.Time
	State           State
	ReserveDeadline *time.Time
	BuryReason      *string
	ReserveCount    int
}

// jobJSON is the flat wire record. Times and ttr are milliseconds.
type jobJSON struct {
	ID              string  `json:"id"`
	Queue           string  `json:"queue"`
	Payload         []byte  `json:"payload"`
	Priority        int64   `json:"priority"`
	TTR             int64   `json:"ttr"`
	CreatedAt       int64   `json:"created_at"`
	ReadyAt         int64   `json:"ready_at"`
	State           State   `json:"state"`
	ReserveDeadline *int64  `json:"reserve_deadline,omitempty"`
	BuryReason      *string `json:"bury_reason,omitempty"`
	ReserveCount    int     `json:"reserve_count"`
}

// MarshalJSON renders the job as a flat record with millisecond times.
func (j Job) MarshalJSON() ([]byte, error) {
	rec := jobJSON{
		ID:           j.ID,
		Queue:        j.Queue,
		Payload:      j.Payload,
		Priority:     j.Priority,
		TTR:          j.TTR.Milliseconds(),
		CreatedAt:    j.CreatedAt.UnixMilli(),
		ReadyAt:      j.ReadyAt.UnixMilli(),
		State:        j.State,
		ReserveCount: j.ReserveCount,
	}
	if j.State == StateReserved && j.ReserveDeadline != nil {
		ms := j.ReserveDeadline.UnixMilli()
		rec.ReserveDeadline = &ms
	}
	if j.State == StateBuried && j.BuryReason != nil {
		rec.BuryReason = j.BuryReason
	}
	return json.Marshal(rec)
}

// UnmarshalJSON parses a record produced by MarshalJSON.
func (j *Job) UnmarshalJSON(data []byte) error {
	var rec jobJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if !rec.State.Valid() {
		return fmt.Errorf("unknown job state %q", rec.State)
	}
	*j = Job{
		ID:           rec.ID,
		Queue:        rec.Queue,
		Payload:      rec.Payload,
		Priority:     rec.Priority,
		TTR:          time.Duration(rec.TTR) * time.Millisecond,
		CreatedAt:    FromMillis(rec.CreatedAt),
		ReadyAt:      FromMillis(rec.ReadyAt),
		State:        rec.State,
		BuryReason:   rec.BuryReason,
		ReserveCount: rec.ReserveCount,
	}
	if rec.ReserveDeadline != nil {
		t := FromMillis(*rec.ReserveDeadline)
		j.ReserveDeadline = &t
	}
	return nil
}

// QueueStats holds per-state job counts for one queue.
type QueueStats struct {
	Queue    string `json:"queue"`
	Delayed  int    `json:"delayed"`
	Ready    int    `json:"ready"`
	Reserved int    `json:"reserved"`
	Buried   int    `json:"buried"`
	Total    int    `json:"total"`
}

// Count returns the number of jobs in state s.
func (q QueueStats) Count(s State) int {
	switch s {
	case StateDelayed:
		return q.Delayed
	case StateReady:
		return q.Ready
	case StateReserved:
		return q.Reserved
	case StateBuried:
		return q.Buried
	}
	return 0
}

// EnqueueRequest contains all parameters for enqueuing a job.
type EnqueueRequest struct {
	Queue    string
	Payload  []byte
	Priority int64
	TTR      time.Duration
	Delay    time.Duration
	Now      time.Time
}

// WipeScope selects which jobs a wipe removes. Build one with WipeAll or
// WipeQueue; the zero value is rejected.
type WipeScope struct {
	queue string
	all   bool
}

// WipeAll selects every job in every queue.
func WipeAll() WipeScope { return WipeScope{all: true} }

// WipeQueue selects every job in one queue.
func WipeQueue(name string) WipeScope { return WipeScope{queue: name} }

// All reports whether the scope covers every queue.
func (w WipeScope) All() bool { return w.all }

// Queue returns the queue name for a single-queue scope.
func (w WipeScope) Queue() string { return w.queue }

// IsZero reports whether the scope was never set.
func (w WipeScope) IsZero() bool { return !w.all && w.queue == "" }

func (w WipeScope) String() string {
	if w.all {
		return "all"
	}
	return "queue:" + w.queue
}

// FromMillis converts Unix milliseconds to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
