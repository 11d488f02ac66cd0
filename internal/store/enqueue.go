package store

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Enqueue adds a job to req.Queue and returns its id. The job is ready at
// req.Now + req.Delay; with no delay it is immediately ready.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if err := requireNow(req.Now); err != nil {
		s.failed(OpEnqueue, err)
		return "", err
	}
	if req.Delay < 0 {
		err := NewInvalidArgument("delay must be >= 0")
		s.failed(OpEnqueue, err)
		return "", err
	}
	op := EnqueueOp{
		Queue:    req.Queue,
		Payload:  req.Payload,
		Priority: req.Priority,
		TTRMs:    durationMs(req.TTR),
		DelayMs:  durationMs(req.Delay),
		NowMs:    req.Now.UnixMilli(),
	}
	if err := s.cfg.ValidateEnqueue(op); err != nil {
		s.failed(OpEnqueue, err)
		return "", err
	}

	res := s.apply(ctx, OpEnqueue, op,
		attribute.String("queue", op.Queue),
		attribute.Int64("priority", op.Priority),
	)
	return resultAs[string](OpEnqueue, res)
}
