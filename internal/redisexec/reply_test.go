package redisexec

import (
	"testing"
	"time"

	"github.com/user/sqeleton/internal/store"
)

func TestDecodeJobKeepsIDString(t *testing.T) {
	j, err := decodeJob([]any{
		"id", "0012", "queue", "q", "payload", "hello", "priority", "5", "ttr", "10000",
		"created_at", "1000", "ready_at", "1500", "state", "reserved",
		"reserve_count", "2", "reserve_deadline", "11500",
	})
	if err != nil {
		t.Fatalf("decodeJob: %v", err)
	}
	if j.ID != "0012" {
		t.Errorf("id = %q, must stay a string", j.ID)
	}
	if j.Priority != 5 || j.TTR != 10*time.Second || j.ReserveCount != 2 {
		t.Errorf("numbers: %+v", j)
	}
	if j.ReserveDeadline == nil || j.ReserveDeadline.UnixMilli() != 11500 {
		t.Errorf("reserve_deadline = %v", j.ReserveDeadline)
	}
	if string(j.Payload) != "hello" {
		t.Errorf("payload = %q", j.Payload)
	}
}

func TestDecodeJobNumericLookingTextStaysText(t *testing.T) {
	j, err := decodeJob([]any{
		"id", "3", "queue", "123", "payload", "456", "priority", "0", "ttr", "1",
		"created_at", "0", "ready_at", "0", "state", "buried", "reserve_count", "0",
		"bury_reason", "789",
	})
	if err != nil {
		t.Fatalf("decodeJob: %v", err)
	}
	if j.Queue != "123" || string(j.Payload) != "456" || *j.BuryReason != "789" {
		t.Errorf("text fields coerced: %+v", j)
	}
}

func TestDecodeJobErrors(t *testing.T) {
	bad := []any{
		"not an array",
		[]any{"id"},
		[]any{"id", "1", "priority", "high", "state", "ready"},
		[]any{"queue", "q", "state", "ready"},
		[]any{"id", "1", "state", "pending"},
	}
	for i, b := range bad {
		if _, err := decodeJob(b); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestDecodeDequeue(t *testing.T) {
	empty, err := decodeDequeue([]any{int64(2), int64(1), []any{}})
	if err != nil {
		t.Fatalf("decodeDequeue: %v", err)
	}
	if empty.Job != nil || empty.Promoted != 2 || empty.Recovered != 1 {
		t.Errorf("empty result = %+v", empty)
	}

	full, err := decodeDequeue([]any{int64(0), int64(0), []any{
		"id", "1", "queue", "q", "payload", "", "priority", "0", "ttr", "5",
		"created_at", "0", "ready_at", "0", "state", "reserved", "reserve_count", "1",
		"reserve_deadline", "5",
	}})
	if err != nil {
		t.Fatalf("decodeDequeue: %v", err)
	}
	if full.Job == nil || full.Job.State != store.StateReserved {
		t.Errorf("full result = %+v", full)
	}
}

func TestDecodeQueues(t *testing.T) {
	qs, err := decodeQueues([]any{
		[]any{"a", int64(1), int64(2), int64(3), int64(4)},
		[]any{"b", int64(0), int64(1), int64(0), int64(0)},
	})
	if err != nil {
		t.Fatalf("decodeQueues: %v", err)
	}
	if len(qs) != 2 || qs[0].Queue != "a" || qs[0].Total != 10 || qs[1].Ready != 1 {
		t.Errorf("queues = %+v", qs)
	}
}
