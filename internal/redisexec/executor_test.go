package redisexec

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/user/sqeleton/internal/store"
)

// replyErr is an error reply as go-redis reports it.
type replyErr string

func (e replyErr) Error() string { return string(e) }
func (replyErr) RedisError()     {}

// fakeScripter simulates a server-side script cache.
type fakeScripter struct {
	cached    bool
	evals     int
	loads     int
	reply     any
	evalErr   error
	loadErr   error
	lastArgs  []any
	loadedSrc string
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha string, _ []string, args ...any) *redis.Cmd {
	f.evals++
	f.lastArgs = args
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	if !f.cached {
		return redis.NewCmdResult(nil, replyErr("NOSCRIPT No matching script. Please use EVAL."))
	}
	return redis.NewCmdResult(f.reply, nil)
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, src string) *redis.StringCmd {
	f.loads++
	f.loadedSrc = src
	if f.loadErr != nil {
		return redis.NewStringResult("", f.loadErr)
	}
	f.cached = true
	return redis.NewStringResult(redis.NewScript(src).Hash(), nil)
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	panic("Eval must not be used")
}

func (f *fakeScripter) EvalRO(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	panic("EvalRO must not be used")
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	panic("EvalShaRO must not be used")
}

func (f *fakeScripter) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	panic("ScriptExists must not be used")
}

func TestEvalLoadsOnceOnNoScript(t *testing.T) {
	f := &fakeScripter{reply: int64(1)}
	x := New(f, "t:", store.DefaultConfig())

	n, err := x.apply(context.Background(), store.OpDelete, store.DeleteOp{JobID: "5"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n.(int) != 1 {
		t.Errorf("removed = %v", n)
	}
	if f.loads != 1 || f.evals != 2 {
		t.Errorf("loads=%d evals=%d, want 1 and 2", f.loads, f.evals)
	}
	if f.loadedSrc != scriptSrc {
		t.Error("loaded script differs from embedded source")
	}
	if x.ScriptLoads() != 1 {
		t.Errorf("ScriptLoads = %d", x.ScriptLoads())
	}

	// Cached now: one eval, no load.
	if _, err := x.apply(context.Background(), store.OpDelete, store.DeleteOp{JobID: "5"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.loads != 1 || f.evals != 3 {
		t.Errorf("loads=%d evals=%d after cached call", f.loads, f.evals)
	}
}

// stubbornScripter never caches the script, so a retry loop would spin.
type stubbornScripter struct{ fakeScripter }

func (s *stubbornScripter) ScriptLoad(ctx context.Context, src string) *redis.StringCmd {
	s.loads++
	return redis.NewStringResult(redis.NewScript(src).Hash(), nil)
}

func TestEvalRetriesExactlyOnce(t *testing.T) {
	s := &stubbornScripter{}
	x := New(s, "t:", store.DefaultConfig())
	_, err := x.apply(context.Background(), store.OpDelete, store.DeleteOp{JobID: "5"})
	if err == nil {
		t.Fatal("expected error when the script stays uncached")
	}
	if s.loads != 1 || s.evals != 2 {
		t.Errorf("loads=%d evals=%d, want exactly one load and one retry", s.loads, s.evals)
	}
}

func TestTransportErrorClassified(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	f := &fakeScripter{evalErr: netErr}
	x := New(f, "t:", store.DefaultConfig())
	res := x.Apply(context.Background(), store.OpDequeue, store.DequeueOp{Queue: "q", NowMs: 1})
	if !store.IsTransportUnavailable(res.Err) {
		t.Fatalf("expected TransportUnavailable, got %v", res.Err)
	}
	if !errors.Is(res.Err, netErr) {
		t.Error("cause should be preserved")
	}
	if f.evals != 1 {
		t.Errorf("transport error retried: %d evals", f.evals)
	}
}

func TestScriptErrorsClassified(t *testing.T) {
	tests := []struct {
		reply string
		check func(error) bool
	}{
		{"INVALID_ARGUMENT ttr must be >= 1ms", store.IsInvalidArgument},
		{"INVALID_STATE job 4 not found", store.IsInvalidState},
		{"NOT_FOUND job 4 not found", store.IsNotFound},
	}
	for _, tt := range tests {
		err := classify(replyErr(tt.reply))
		if !tt.check(err) {
			t.Errorf("classify(%q) = %v", tt.reply, err)
		}
	}
	err := classify(replyErr("ERR something odd"))
	if store.CodeOf(err) != "" {
		t.Errorf("unexpected classification for generic error: %v", err)
	}
}

func TestArgumentLayout(t *testing.T) {
	f := &fakeScripter{cached: true, reply: "7"}
	x := New(f, "t:", store.DefaultConfig())
	res := x.Apply(context.Background(), store.OpEnqueue, store.EnqueueOp{
		Queue: "q", Payload: []byte("p"), Priority: 5, TTRMs: 10, DelayMs: 0, NowMs: 99,
	})
	if res.Err != nil {
		t.Fatalf("Apply: %v", res.Err)
	}
	if res.Data.(string) != "7" {
		t.Errorf("id = %v", res.Data)
	}
	// prefix, command, then the five enqueue arguments and now.
	if len(f.lastArgs) != 8 || f.lastArgs[0] != "t:" || f.lastArgs[1] != "enqueue" || f.lastArgs[7] != int64(99) {
		t.Errorf("args = %v", f.lastArgs)
	}
}

func TestValidatedBeforeRemoteCall(t *testing.T) {
	f := &fakeScripter{cached: true}
	x := New(f, "t:", store.DefaultConfig())
	res := x.Apply(context.Background(), store.OpKick, store.KickOp{Queue: "q", N: -1})
	if !store.IsInvalidArgument(res.Err) {
		t.Fatalf("expected InvalidArgument, got %v", res.Err)
	}
	if f.evals != 0 {
		t.Error("invalid call reached redis")
	}
}

func TestScriptSHA(t *testing.T) {
	x := New(&fakeScripter{}, "", store.DefaultConfig())
	if len(x.ScriptSHA()) != 40 {
		t.Errorf("sha = %q", x.ScriptSHA())
	}
	if x.prefix != DefaultPrefix {
		t.Errorf("prefix = %q", x.prefix)
	}
}
