package redisexec

import (
	"fmt"
	"strconv"
	"time"

	"github.com/user/sqeleton/internal/store"
)

// decodeJob maps a flat [field, value, ...] reply onto a Job by field name.
// The id stays a string; other numeric fields are parsed as integers.
func decodeJob(res any) (*store.Job, error) {
	flat, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("job reply: unexpected %T", res)
	}
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("job reply: odd field count %d", len(flat))
	}

	j := &store.Job{}
	for i := 0; i < len(flat); i += 2 {
		name, ok := flat[i].(string)
		if !ok {
			return nil, fmt.Errorf("job reply: field name %T", flat[i])
		}
		val, ok := flat[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("job reply: field %s has %T", name, flat[i+1])
		}
		if err := setJobField(j, name, val); err != nil {
			return nil, err
		}
	}
	if j.ID == "" || !j.State.Valid() {
		return nil, fmt.Errorf("job reply: incomplete record %q/%q", j.ID, j.State)
	}
	return j, nil
}

func setJobField(j *store.Job, name, val string) error {
	switch name {
	case "id":
		j.ID = val
		return nil
	case "queue":
		j.Queue = val
		return nil
	case "payload":
		j.Payload = []byte(val)
		return nil
	case "state":
		j.State = store.State(val)
		return nil
	case "bury_reason":
		reason := val
		j.BuryReason = &reason
		return nil
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("job reply: field %s: %w", name, err)
	}
	switch name {
	case "priority":
		j.Priority = n
	case "ttr":
		j.TTR = time.Duration(n) * time.Millisecond
	case "created_at":
		j.CreatedAt = store.FromMillis(n)
	case "ready_at":
		j.ReadyAt = store.FromMillis(n)
	case "reserve_deadline":
		t := store.FromMillis(n)
		j.ReserveDeadline = &t
	case "reserve_count":
		j.ReserveCount = int(n)
	}
	// Unknown numeric fields are ignored so the script can grow.
	return nil
}

// decodeDequeue parses {promoted, recovered, job-or-empty}.
func decodeDequeue(res any) (*store.DequeueResult, error) {
	parts, ok := res.([]any)
	if !ok || len(parts) != 3 {
		return nil, fmt.Errorf("dequeue reply: unexpected %v", res)
	}
	promoted, err := replyInt(parts[0])
	if err != nil {
		return nil, fmt.Errorf("dequeue reply: %w", err)
	}
	recovered, err := replyInt(parts[1])
	if err != nil {
		return nil, fmt.Errorf("dequeue reply: %w", err)
	}
	out := &store.DequeueResult{Promoted: promoted, Recovered: recovered}
	if flat, ok := parts[2].([]any); ok && len(flat) == 0 {
		return out, nil
	}
	out.Job, err = decodeJob(parts[2])
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeStats parses {delayed, ready, reserved, buried}.
func decodeStats(queue string, res any) (store.QueueStats, error) {
	counts, ok := res.([]any)
	if !ok || len(counts) != 4 {
		return store.QueueStats{}, fmt.Errorf("stats reply: unexpected %v", res)
	}
	var n [4]int
	for i, c := range counts {
		v, err := replyInt(c)
		if err != nil {
			return store.QueueStats{}, fmt.Errorf("stats reply: %w", err)
		}
		n[i] = v
	}
	return store.QueueStats{
		Queue:    queue,
		Delayed:  n[0],
		Ready:    n[1],
		Reserved: n[2],
		Buried:   n[3],
		Total:    n[0] + n[1] + n[2] + n[3],
	}, nil
}

// decodeQueues parses {{name, delayed, ready, reserved, buried}, ...}.
func decodeQueues(res any) ([]store.QueueStats, error) {
	rows, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("queues reply: unexpected %T", res)
	}
	out := make([]store.QueueStats, 0, len(rows))
	for _, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) != 5 {
			return nil, fmt.Errorf("queues reply: bad row %v", r)
		}
		name, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("queues reply: queue name %T", row[0])
		}
		st, err := decodeStats(name, row[1:])
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
