// Package redisexec is the remote Applier: every operation runs as one
// invocation of an embedded Lua script, which Redis executes atomically.
package redisexec

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/user/sqeleton/internal/store"
)

//go:embed sqeleton.lua
var scriptSrc string

// DefaultPrefix namespaces every key the script touches.
const DefaultPrefix = "sqeleton:"

// Executor implements store.Applier on top of a Redis server.
type Executor struct {
	rdb    redis.Scripter
	prefix string
	cfg    store.Config
	sha    string
	loads  atomic.Int64
}

// New creates an Executor. The script is not loaded until the first call
// that finds it missing from the server's cache.
func New(rdb redis.Scripter, prefix string, cfg store.Config) *Executor {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Executor{
		rdb:    rdb,
		prefix: prefix,
		cfg:    cfg,
		sha:    redis.NewScript(scriptSrc).Hash(),
	}
}

// ScriptSHA returns the SHA1 digest the script is addressed by.
func (x *Executor) ScriptSHA() string {
	return x.sha
}

// ScriptLoads returns how many times the script has been loaded.
func (x *Executor) ScriptLoads() int64 {
	return x.loads.Load()
}

// eval runs the script once by digest. If the server reports the script
// is not cached, it is loaded and the call retried exactly once.
func (x *Executor) eval(ctx context.Context, cmd string, args ...any) (any, error) {
	argv := make([]any, 0, len(args)+2)
	argv = append(argv, x.prefix, cmd)
	argv = append(argv, args...)

	res, err := x.rdb.EvalSha(ctx, x.sha, nil, argv...).Result()
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		slog.Debug("redis script not cached, loading", "sha", x.sha)
		if _, lerr := x.rdb.ScriptLoad(ctx, scriptSrc).Result(); lerr != nil {
			return nil, classify(lerr)
		}
		x.loads.Add(1)
		res, err = x.rdb.EvalSha(ctx, x.sha, nil, argv...).Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// classify maps a script error reply to its store error kind. Anything that
// is not a Redis reply at all means the server could not be reached.
func classify(err error) error {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return store.NewTransportUnavailable("redis unavailable", err)
	}
	msg := rerr.Error()
	code, rest, _ := strings.Cut(msg, " ")
	switch store.ErrorCode(code) {
	case store.ErrorCodeInvalidArgument:
		return store.NewInvalidArgument("%s", rest)
	case store.ErrorCodeInvalidState:
		return store.NewInvalidState("%s", rest)
	case store.ErrorCodeNotFound:
		return store.NewNotFound("%s", rest)
	}
	return fmt.Errorf("redis script: %w", err)
}

// Apply implements store.Applier.
func (x *Executor) Apply(ctx context.Context, opType store.OpType, data any) *store.OpResult {
	out, err := x.apply(ctx, opType, data)
	if err != nil {
		return &store.OpResult{Err: err}
	}
	return &store.OpResult{Data: out}
}

func (x *Executor) apply(ctx context.Context, opType store.OpType, data any) (any, error) {
	switch opType {
	case store.OpEnqueue:
		op, err := opData[store.EnqueueOp](data)
		if err != nil {
			return nil, err
		}
		if err := x.cfg.ValidateEnqueue(op); err != nil {
			return nil, err
		}
		res, err := x.eval(ctx, "enqueue", op.Queue, op.Payload, op.Priority, op.TTRMs, op.DelayMs, op.NowMs)
		if err != nil {
			return nil, err
		}
		return replyString(res)

	case store.OpDequeue:
		op, err := opData[store.DequeueOp](data)
		if err != nil {
			return nil, err
		}
		if err := x.cfg.ValidateQueue(op.Queue); err != nil {
			return nil, err
		}
		res, err := x.eval(ctx, "dequeue", op.Queue, op.NowMs)
		if err != nil {
			return nil, err
		}
		return decodeDequeue(res)

	case store.OpDelete:
		op, err := opData[store.DeleteOp](data)
		if err != nil {
			return nil, err
		}
		res, err := x.eval(ctx, "delete", op.JobID)
		if err != nil {
			return nil, err
		}
		return replyInt(res)

	case store.OpRelease:
		op, err := opData[store.ReleaseOp](data)
		if err != nil {
			return nil, err
		}
		if err := x.cfg.ValidateRelease(op); err != nil {
			return nil, err
		}
		_, err = x.eval(ctx, "release", op.JobID, op.Priority, op.DelayMs, op.NowMs)
		return nil, err

	case store.OpBury:
		op, err := opData[store.BuryOp](data)
		if err != nil {
			return nil, err
		}
		_, err = x.eval(ctx, "bury", op.JobID, op.Reason)
		return nil, err

	case store.OpKick:
		op, err := opData[store.KickOp](data)
		if err != nil {
			return nil, err
		}
		if err := x.cfg.ValidateKick(op); err != nil {
			return nil, err
		}
		res, err := x.eval(ctx, "kick", op.Queue, op.N)
		if err != nil {
			return nil, err
		}
		return replyInt(res)

	case store.OpWipe:
		op, err := opData[store.WipeOp](data)
		if err != nil {
			return nil, err
		}
		if err := x.cfg.ValidateWipe(op); err != nil {
			return nil, err
		}
		res, err := x.eval(ctx, "wipe", op.Scope.Queue())
		if err != nil {
			return nil, err
		}
		return replyInt(res)

	case store.OpPeek:
		op, err := opData[store.PeekOp](data)
		if err != nil {
			return nil, err
		}
		res, err := x.eval(ctx, "peek", op.JobID)
		if err != nil {
			return nil, err
		}
		return decodeJob(res)

	case store.OpStats:
		op, err := opData[store.StatsOp](data)
		if err != nil {
			return nil, err
		}
		res, err := x.eval(ctx, "stats", op.Queue)
		if err != nil {
			return nil, err
		}
		return decodeStats(op.Queue, res)

	case store.OpListQueues:
		res, err := x.eval(ctx, "queues")
		if err != nil {
			return nil, err
		}
		return decodeQueues(res)

	default:
		return nil, fmt.Errorf("unknown op type: %d", opType)
	}
}

func opData[T any](data any) (T, error) {
	switch v := data.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, store.NewInvalidArgument("unexpected op data %T", data)
}

func replyString(res any) (string, error) {
	switch v := res.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return "", fmt.Errorf("unexpected reply %T", res)
}

func replyInt(res any) (int, error) {
	v, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected reply %T", res)
	}
	return int(v), nil
}
