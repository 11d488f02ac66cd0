package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/user/sqeleton/internal/store"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

// fakeApplier records the ops it receives and returns canned results.
type fakeApplier struct {
	mu     sync.Mutex
	ops    []store.OpType
	data   []any
	result func(op store.OpType, data any) *store.OpResult
}

func (f *fakeApplier) Apply(_ context.Context, op store.OpType, data any) *store.OpResult {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.data = append(f.data, data)
	f.mu.Unlock()
	if f.result == nil {
		return &store.OpResult{}
	}
	return f.result(op, data)
}

type recordingObserver struct {
	mu          sync.Mutex
	completed   []store.OpType
	errs        []error
	maintenance [][2]int
}

func (r *recordingObserver) OpCompleted(op store.OpType, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, op)
	r.errs = append(r.errs, err)
}

func (r *recordingObserver) Maintenance(_ string, promoted, recovered int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maintenance = append(r.maintenance, [2]int{promoted, recovered})
}

func TestEnqueueConvertsToMillis(t *testing.T) {
	fa := &fakeApplier{result: func(store.OpType, any) *store.OpResult {
		return &store.OpResult{Data: "1"}
	}}
	s := store.NewStore(fa, store.DefaultConfig())

	id, err := s.Enqueue(context.Background(), store.EnqueueRequest{
		Queue: "q", Payload: []byte("p"), Priority: 5,
		TTR: 10*time.Second + 400*time.Microsecond, Delay: 1500 * time.Millisecond, Now: t0,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id != "1" {
		t.Errorf("id = %q", id)
	}
	op, ok := fa.data[0].(store.EnqueueOp)
	if !ok {
		t.Fatalf("applier got %T", fa.data[0])
	}
	if op.TTRMs != 10000 || op.DelayMs != 1500 || op.NowMs != t0.UnixMilli() {
		t.Errorf("op = %+v", op)
	}
}

func TestValidationFailureNeverReachesApplier(t *testing.T) {
	fa := &fakeApplier{}
	obs := &recordingObserver{}
	s := store.NewStore(fa, store.DefaultConfig())
	s.SetObserver(obs)
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, store.EnqueueRequest{Queue: "q", TTR: 0, Now: t0}); !store.IsInvalidArgument(err) {
		t.Errorf("Enqueue: expected InvalidArgument, got %v", err)
	}
	if _, err := s.Dequeue(ctx, "q", time.Time{}); !store.IsInvalidArgument(err) {
		t.Errorf("Dequeue without now: expected InvalidArgument, got %v", err)
	}
	if err := s.Release(ctx, "1", 0, -time.Second, t0); !store.IsInvalidArgument(err) {
		t.Errorf("Release: expected InvalidArgument, got %v", err)
	}
	if _, err := s.Dequeue(ctx, "q", time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)); !store.IsInvalidArgument(err) {
		t.Errorf("Dequeue past year 9999: expected InvalidArgument, got %v", err)
	}
	if _, err := s.Kick(ctx, "q", -1); !store.IsInvalidArgument(err) {
		t.Errorf("Kick: expected InvalidArgument, got %v", err)
	}
	if _, err := s.Wipe(ctx, store.WipeScope{}); !store.IsInvalidArgument(err) {
		t.Errorf("Wipe: expected InvalidArgument, got %v", err)
	}
	if len(fa.ops) != 0 {
		t.Errorf("applier received %v", fa.ops)
	}
	if len(obs.completed) != 6 {
		t.Errorf("observer saw %d ops, want 6", len(obs.completed))
	}
}

func TestTransportErrorSurfacedUnmodified(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:6379: connection refused")
	fa := &fakeApplier{result: func(store.OpType, any) *store.OpResult {
		return &store.OpResult{Err: store.NewTransportUnavailable("redis", cause)}
	}}
	s := store.NewStore(fa, store.DefaultConfig())

	_, err := s.Dequeue(context.Background(), "q", t0)
	if !store.IsTransportUnavailable(err) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if len(fa.ops) != 1 {
		t.Errorf("store retried: %d applies", len(fa.ops))
	}
}

func TestDequeueReportsMaintenance(t *testing.T) {
	fa := &fakeApplier{result: func(store.OpType, any) *store.OpResult {
		return &store.OpResult{Data: &store.DequeueResult{Promoted: 2, Recovered: 1}}
	}}
	obs := &recordingObserver{}
	s := store.NewStore(fa, store.DefaultConfig())
	s.SetObserver(obs)

	j, err := s.Dequeue(context.Background(), "q", t0)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if j != nil {
		t.Errorf("expected no job, got %+v", j)
	}
	if len(obs.maintenance) != 1 || obs.maintenance[0] != [2]int{2, 1} {
		t.Errorf("maintenance = %v", obs.maintenance)
	}
}

func TestUnexpectedResultType(t *testing.T) {
	fa := &fakeApplier{result: func(store.OpType, any) *store.OpResult {
		return &store.OpResult{Data: 42}
	}}
	s := store.NewStore(fa, store.DefaultConfig())
	if _, err := s.Enqueue(context.Background(), store.EnqueueRequest{Queue: "q", TTR: time.Second, Now: t0}); err == nil {
		t.Fatal("expected error for wrong result type")
	}
}

func TestNilApplierResult(t *testing.T) {
	fa := &fakeApplier{result: func(store.OpType, any) *store.OpResult { return nil }}
	s := store.NewStore(fa, store.DefaultConfig())
	if _, err := s.Delete(context.Background(), "1"); err == nil {
		t.Fatal("expected error for nil result")
	}
}

func TestOpTypeString(t *testing.T) {
	if store.OpDequeue.String() != "dequeue" {
		t.Errorf("got %q", store.OpDequeue.String())
	}
	if store.OpType(99).String() != "op(99)" {
		t.Errorf("got %q", store.OpType(99).String())
	}
	if store.OpPeek.Mutating() || !store.OpWipe.Mutating() {
		t.Error("Mutating classification wrong")
	}
}
