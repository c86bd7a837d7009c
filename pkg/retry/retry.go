// Package retry runs fallible operations with a bounded number of attempts
// and linearly increasing backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

const (
	// DefaultMaxAttempts is the attempt budget used for fetches and writes.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is multiplied by the attempt number between attempts.
	DefaultBaseDelay = 2 * time.Second
)

// Executor retries an operation up to MaxAttempts times. After attempt i
// fails (i starting at 1) it waits BaseDelay*i before the next attempt.
// The final attempt's error is returned as-is.
type Executor struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)

	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an executor. A nil logger disables retry logging.
func New(maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		logger:      logger.With(zap.String("component", "retry")),
		sleep:       sleepContext,
	}
}

// Default returns an executor with 3 attempts and 2s linear backoff.
func Default(logger *zap.Logger) *Executor {
	return New(DefaultMaxAttempts, DefaultBaseDelay, logger)
}

// WithSleep replaces the wait function. Tests use it to record delays
// without sleeping.
func (e *Executor) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Executor {
	cp := *e
	cp.sleep = fn
	return &cp
}

// WithOnRetry returns a copy of e that calls fn before each wait.
func (e *Executor) WithOnRetry(fn func(attempt int, delay time.Duration, err error)) *Executor {
	cp := *e
	cp.OnRetry = fn
	return &cp
}

// Delay returns the wait after the given failed attempt (1-indexed).
func (e *Executor) Delay(attempt int) time.Duration {
	return e.BaseDelay * time.Duration(attempt)
}

// Do runs op until it succeeds, returns a permanent error, or the attempt
// budget is spent.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(ctx, err) || attempt == e.MaxAttempts {
			break
		}

		delay := e.Delay(attempt)
		e.logger.Warn("operation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		if e.OnRetry != nil {
			e.OnRetry(attempt, delay, err)
		}

		if serr := e.sleep(ctx, delay); serr != nil {
			// Cancelled while waiting: the operation's own error is the
			// more useful one to surface.
			return lastErr
		}
	}

	return lastErr
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !synerrors.IsPermanent(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
