package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/sqeleton/pkg/client"
)

type releaseCall struct {
	id       string
	priority int64
	delay    time.Duration
}

// memQueue hands out a fixed list of jobs and records how each was settled.
type memQueue struct {
	mu       sync.Mutex
	jobs     []*client.Job
	empties  int
	deleted  []string
	released []releaseCall
	buried   map[string]string
}

func newMemQueue(jobs ...*client.Job) *memQueue {
	return &memQueue{jobs: jobs, buried: map[string]string{}}
}

func (m *memQueue) Dequeue(ctx context.Context, queue string) (*client.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) == 0 {
		m.empties++
		return nil, nil
	}
	j := m.jobs[0]
	m.jobs = m.jobs[1:]
	return j, nil
}

func (m *memQueue) Delete(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return 1, nil
}

func (m *memQueue) Release(ctx context.Context, id string, priority int64, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, releaseCall{id, priority, delay})
	return nil
}

func (m *memQueue) Bury(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buried[id] = reason
	return nil
}

func (m *memQueue) settled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted) + len(m.released) + len(m.buried)
}

func runUntilSettled(t *testing.T, w *Worker, q *memQueue, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for q.settled() < want {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("settled %d jobs, want %d", q.settled(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWorkerSettlesJobs(t *testing.T) {
	q := newMemQueue(
		&client.Job{ID: "1", Priority: 3, ReserveCount: 1, Payload: []byte("ok")},
		&client.Job{ID: "2", Priority: 7, ReserveCount: 3, Payload: []byte("retry")},
		&client.Job{ID: "3", Priority: 1, ReserveCount: 1, Payload: []byte("fatal")},
	)
	w := New(q, Config{Queue: "q", PollInterval: time.Millisecond, RetryBase: time.Second, RetryMax: time.Minute},
		func(ctx context.Context, job *client.Job) error {
			switch string(job.Payload) {
			case "retry":
				return errors.New("try again")
			case "fatal":
				return Bury(errors.New("bad input"))
			}
			return nil
		})
	runUntilSettled(t, w, q, 3)

	if len(q.deleted) != 1 || q.deleted[0] != "1" {
		t.Fatalf("deleted = %v, want [1]", q.deleted)
	}
	if len(q.released) != 1 {
		t.Fatalf("released = %v, want one call", q.released)
	}
	rc := q.released[0]
	if rc.id != "2" || rc.priority != 7 || rc.delay != 4*time.Second {
		t.Fatalf("release = %+v, want id 2 priority 7 delay 4s", rc)
	}
	if q.buried["3"] != "bad input" {
		t.Fatalf("buried = %v, want 3 with reason", q.buried)
	}
	processed, failed, buried := w.Stats()
	if processed != 1 || failed != 1 || buried != 1 {
		t.Fatalf("Stats = %d/%d/%d, want 1/1/1", processed, failed, buried)
	}
}

func TestWorkerRetryStrategy(t *testing.T) {
	q := newMemQueue(&client.Job{ID: "4", Priority: 2, ReserveCount: 3})
	w := New(q, Config{Queue: "q", PollInterval: time.Millisecond, RetryStrategy: RetryLinear, RetryBase: time.Second, RetryMax: time.Minute},
		func(ctx context.Context, job *client.Job) error {
			return errors.New("again")
		})
	runUntilSettled(t, w, q, 1)
	if len(q.released) != 1 || q.released[0].delay != 3*time.Second {
		t.Fatalf("released = %v, want one call with delay 3s", q.released)
	}
}

func TestWorkerRecoversHandlerPanic(t *testing.T) {
	q := newMemQueue(&client.Job{ID: "9", ReserveCount: 1})
	w := New(q, Config{Queue: "q", PollInterval: time.Millisecond},
		func(ctx context.Context, job *client.Job) error {
			panic("boom")
		})
	runUntilSettled(t, w, q, 1)
	if len(q.released) != 1 || q.released[0].id != "9" {
		t.Fatalf("released = %v, want job 9", q.released)
	}
}

func TestWorkerHandlerDeadlineFromLease(t *testing.T) {
	deadline := time.Now().Add(time.Hour).UnixMilli()
	q := newMemQueue(&client.Job{ID: "5", ReserveDeadline: &deadline})
	var got time.Time
	w := New(q, Config{Queue: "q", PollInterval: time.Millisecond},
		func(ctx context.Context, job *client.Job) error {
			got, _ = ctx.Deadline()
			return nil
		})
	runUntilSettled(t, w, q, 1)
	if got.UnixMilli() != deadline {
		t.Fatalf("handler deadline = %v, want %d", got, deadline)
	}
}

func TestWorkerIdleBackoff(t *testing.T) {
	q := newMemQueue()
	w := New(q, Config{Queue: "q", PollInterval: 10 * time.Millisecond, MaxPollInterval: 20 * time.Millisecond},
		func(ctx context.Context, job *client.Job) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	q.mu.Lock()
	empties := q.empties
	q.mu.Unlock()
	// Without backoff a tight loop would poll thousands of times.
	if empties == 0 || empties > 25 {
		t.Fatalf("empty polls = %d, want a handful", empties)
	}
}

func TestRunRequiresQueue(t *testing.T) {
	w := New(newMemQueue(), Config{}, func(context.Context, *client.Job) error { return nil })
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for empty queue name")
	}
}

func TestBuryNil(t *testing.T) {
	if Bury(nil) != nil {
		t.Fatal("Bury(nil) should be nil")
	}
	base := errors.New("x")
	if !errors.Is(Bury(base), base) {
		t.Fatal("Bury should wrap its cause")
	}
}

func TestWorkerIDUnique(t *testing.T) {
	a := New(newMemQueue(), Config{Queue: "q"}, nil)
	b := New(newMemQueue(), Config{Queue: "q"}, nil)
	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("ids = %q, %q", a.ID(), b.ID())
	}
}
