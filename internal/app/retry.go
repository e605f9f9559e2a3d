package app

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"

	"tradePilot/internal/ports"
)

// retryPolicy bounds repeated attempts of an outbound call. The delay
// between attempts is fixed; attempts that fail with a non-retryable
// error stop immediately.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// do runs fn up to p.attempts times, sleeping p.delay between failures.
// The last error is returned once attempts are exhausted.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	b := &backoff.Backoff{
		Min:    p.delay,
		Max:    p.delay,
		Factor: 1,
	}
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == p.attempts {
			return lastErr
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// retryable reports whether a second attempt could plausibly succeed.
// Validation and conflict failures are deterministic; repeating them
// only burns the rate limit.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ports.ErrValidation),
		errors.Is(err, ports.ErrStateConflict),
		errors.Is(err, ports.ErrAuthenticationFailed),
		errors.Is(err, ports.ErrInsufficientFunds):
		return false
	}
	return true
}
