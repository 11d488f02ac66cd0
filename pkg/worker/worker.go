package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/sqeleton/internal/store"
	"github.com/user/sqeleton/pkg/client"
)

// Queue is the subset of the client API a worker needs.
type Queue interface {
	Dequeue(ctx context.Context, queue string) (*client.Job, error)
	Delete(ctx context.Context, id string) (int, error)
	Release(ctx context.Context, id string, priority int64, delay time.Duration) error
	Bury(ctx context.Context, id, reason string) error
}

// Handler processes one reserved job. Returning nil deletes the job,
// returning an error wrapped with Bury buries it, and any other error
// releases it for a later retry.
type Handler func(ctx context.Context, job *client.Job) error

// Retry strategies for Config.RetryStrategy.
const (
	RetryNone        = store.BackoffNone
	RetryFixed       = store.BackoffFixed
	RetryLinear      = store.BackoffLinear
	RetryExponential = store.BackoffExponential
)

// Config controls polling and retry timing.
type Config struct {
	Queue       string
	Concurrency int

	// PollInterval is the first sleep after an empty dequeue. Consecutive
	// empty dequeues double it up to MaxPollInterval.
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	// RetryStrategy is one of RetryNone, RetryFixed, RetryLinear or
	// RetryExponential (the default).
	RetryStrategy string
	RetryBase     time.Duration
	RetryMax      time.Duration

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxPollInterval < c.PollInterval {
		c.MaxPollInterval = 5 * time.Second
		if c.MaxPollInterval < c.PollInterval {
			c.MaxPollInterval = c.PollInterval
		}
	}
	if c.RetryStrategy == "" {
		c.RetryStrategy = RetryExponential
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 10 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Worker polls one queue and runs a handler for every reserved job.
type Worker struct {
	id      string
	q       Queue
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu        sync.Mutex
	processed int
	failed    int
	buried    int
}

// New creates a worker for cfg.Queue.
func New(q Queue, cfg Config, h Handler) *Worker {
	cfg.applyDefaults()
	id := uuid.NewString()
	return &Worker{
		id:      id,
		q:       q,
		cfg:     cfg,
		handler: h,
		logger:  cfg.Logger.With("worker_id", id, "queue", cfg.Queue),
	}
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// Stats returns how many jobs were deleted, released and buried so far.
func (w *Worker) Stats() (processed, failed, buried int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed, w.failed, w.buried
}

// Run polls until ctx is cancelled and then waits for in-flight handlers.
// It returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.Queue == "" {
		return fmt.Errorf("worker: queue is required")
	}
	w.logger.Info("worker starting", "concurrency", w.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	processed, failed, buried := w.Stats()
	w.logger.Info("worker stopped", "processed", processed, "failed", failed, "buried", buried)
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	idle := w.cfg.PollInterval
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.q.Dequeue(ctx, w.cfg.Queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue failed", "error", err)
			if !sleep(ctx, w.cfg.MaxPollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleep(ctx, idle) {
				return
			}
			idle = min(idle*2, w.cfg.MaxPollInterval)
			continue
		}
		idle = w.cfg.PollInterval
		w.process(ctx, job)
	}
}

// process runs the handler and settles the job. Settlement uses a context
// detached from ctx so a shutdown does not strand a finished job.
func (w *Worker) process(ctx context.Context, job *client.Job) {
	herr := w.runHandler(ctx, job)
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var be *buryError
	switch {
	case herr == nil:
		if _, err := w.q.Delete(sctx, job.ID); err != nil {
			w.logger.Error("delete failed", "job_id", job.ID, "error", err)
			return
		}
		w.count(&w.processed)
	case errors.As(herr, &be):
		if err := w.q.Bury(sctx, job.ID, be.Error()); err != nil {
			w.logger.Error("bury failed", "job_id", job.ID, "error", err)
			return
		}
		w.logger.Warn("job buried", "job_id", job.ID, "reason", be.Error())
		w.count(&w.buried)
	default:
		delay := store.CalculateBackoff(w.cfg.RetryStrategy, job.ReserveCount, w.cfg.RetryBase, w.cfg.RetryMax)
		if err := w.q.Release(sctx, job.ID, job.Priority, delay); err != nil {
			// An expired lease is recovered by the next dequeue.
			w.logger.Warn("release failed", "job_id", job.ID, "error", err)
			return
		}
		w.logger.Info("job released", "job_id", job.ID, "attempt", job.ReserveCount, "delay", delay, "error", herr)
		w.count(&w.failed)
	}
}

func (w *Worker) runHandler(ctx context.Context, job *client.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	hctx := ctx
	if job.ReserveDeadline != nil {
		var cancel context.CancelFunc
		hctx, cancel = context.WithDeadline(ctx, time.UnixMilli(*job.ReserveDeadline))
		defer cancel()
	}
	return w.handler(hctx, job)
}

func (w *Worker) count(n *int) {
	w.mu.Lock()
	*n++
	w.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type buryError struct {
	err error
}

func (e *buryError) Error() string { return e.err.Error() }
func (e *buryError) Unwrap() error { return e.err }

// Bury marks err as permanent: the worker buries the job with err's text
// as the reason instead of releasing it.
func Bury(err error) error {
	if err == nil {
		return nil
	}
	return &buryError{err: err}
}
