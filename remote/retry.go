package remote

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"dayline/domain"
)

const (
	retryAttempts = 3
	retryDelay    = time.Second
)

// Retry wraps a Store with a fixed-delay retry policy. Saves propagate the
// last error after exhausting attempts so callers see the data-loss risk;
// loads degrade to an empty collection instead, keeping the app usable on a
// dead backend.
type Retry struct {
	base     Store
	logger   *log.Logger
	attempts int
	delay    time.Duration
}

// NewRetry decorates base with the default policy of 3 attempts spaced one
// second apart.
func NewRetry(base Store, logger *log.Logger) *Retry {
	if base == nil {
		panic("remote.NewRetry: base store is nil")
	}
	if logger == nil {
		panic("remote.NewRetry: logger is nil")
	}
	return &Retry{base: base, logger: logger, attempts: retryAttempts, delay: retryDelay}
}

func (r *Retry) SaveTasks(ctx context.Context, identity string, tasks []domain.Task) error {
	return r.do(ctx, "save tasks", func(ctx context.Context) error {
		return r.base.SaveTasks(ctx, identity, tasks)
	})
}

func (r *Retry) SaveProgress(ctx context.Context, identity string, progress []domain.DailyProgress) error {
	return r.do(ctx, "save progress", func(ctx context.Context) error {
		return r.base.SaveProgress(ctx, identity, progress)
	})
}

func (r *Retry) LoadTasks(ctx context.Context, identity string) ([]domain.Task, error) {
	var out []domain.Task
	err := r.do(ctx, "load tasks", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.base.LoadTasks(ctx, identity)
		return innerErr
	})
	if err != nil {
		r.logger.WithError(err).Error("load tasks exhausted retries, degrading to empty")
		return []domain.Task{}, nil
	}
	if out == nil {
		out = []domain.Task{}
	}
	return out, nil
}

func (r *Retry) LoadProgress(ctx context.Context, identity string) ([]domain.DailyProgress, error) {
	var out []domain.DailyProgress
	err := r.do(ctx, "load progress", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = r.base.LoadProgress(ctx, identity)
		return innerErr
	})
	if err != nil {
		r.logger.WithError(err).Error("load progress exhausted retries, degrading to empty")
		return []domain.DailyProgress{}, nil
	}
	if out == nil {
		out = []domain.DailyProgress{}
	}
	return out, nil
}

func (r *Retry) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var last error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		r.logger.WithError(last).WithFields(log.Fields{"op": op, "attempt": attempt}).Warn("remote operation failed")
		if attempt == r.attempts {
			break
		}
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return last
}
