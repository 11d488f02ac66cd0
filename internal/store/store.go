package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sqeleton.store"

// Store is the public surface of the queue engine. It validates arguments,
// converts times to milliseconds and hands each operation to an Applier,
// which executes it as one indivisible step.
type Store struct {
	applier  Applier
	cfg      Config
	observer Observer
	tracer   trace.Tracer
}

// NewStore creates a Store that executes operations through applier.
func NewStore(applier Applier, cfg Config) *Store {
	return &Store{
		applier:  applier,
		cfg:      cfg,
		observer: nopObserver{},
		tracer:   otel.Tracer(tracerName),
	}
}

// SetObserver installs an observer. Pass nil to remove it.
func (s *Store) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

// Config returns the bounds the store enforces.
func (s *Store) Config() Config {
	return s.cfg
}

// apply runs one operation inside a span and reports it to the observer.
func (s *Store) apply(ctx context.Context, op OpType, data any, attrs ...attribute.KeyValue) *OpResult {
	ctx, span := s.tracer.Start(ctx, op.String(), trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	res := s.applier.Apply(ctx, op, data)
	if res == nil {
		res = &OpResult{Err: fmt.Errorf("%s: applier returned no result", op)}
	}
	s.observer.OpCompleted(op, time.Since(start), res.Err)

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		if CodeOf(res.Err) == "" {
			slog.Error("store operation failed", "op", op.String(), "error", res.Err)
		}
	}
	return res
}

// failed reports a validation failure that never reached the applier.
func (s *Store) failed(op OpType, err error) {
	s.observer.OpCompleted(op, 0, err)
}

func requireNow(now time.Time) error {
	if now.IsZero() {
		return NewInvalidArgument("now is required")
	}
	return ValidateNowMs(now.UnixMilli())
}

func resultAs[T any](op OpType, res *OpResult) (T, error) {
	var zero T
	if res.Err != nil {
		return zero, res.Err
	}
	v, ok := res.Data.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", op, res.Data)
	}
	return v, nil
}
