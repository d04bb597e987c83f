// Package retry runs upstream calls under a bounded retry-with-backoff policy.
package retry

import (
	"context"
	"errors"
	"time"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
)

// Policy bounds how often and how patiently a call is retried.
// MaxAttempts counts the first call; 1 means no retry.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Once is a policy that never retries.
var Once = Policy{MaxAttempts: 1}

// Delay returns the wait before retry number attempt (0-based): BaseDelay
// doubled per attempt, capped at MaxDelay when set.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}
	return d
}

type retryAfterError struct {
	err   error
	delay time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// After annotates err with a server-provided wait (Retry-After) that replaces
// the policy delay before the next attempt.
func After(err error, d time.Duration) error {
	if err == nil || d <= 0 {
		return err
	}
	return &retryAfterError{err: err, delay: d}
}

// Do calls fn until it succeeds, returns a non-transient error, the attempts
// run out, or ctx is done. Only errors classified as transient upstream
// failures are retried. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	logger := contextutil.LoggerFromContext(ctx)

	attempts := max(p.MaxAttempts, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !apperr.IsTransient(err) || attempt == attempts-1 {
			return err
		}

		wait := p.Delay(attempt)
		var ra *retryAfterError
		if errors.As(err, &ra) {
			wait = ra.delay
			if p.MaxDelay > 0 && wait > p.MaxDelay {
				wait = p.MaxDelay
			}
		}

		logger.WarnContext(ctx, "transient upstream failure, retrying",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"wait", wait,
			"error", err,
		)

		if sleepErr := Sleep(ctx, wait); sleepErr != nil {
			return err
		}
	}
	return err
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
