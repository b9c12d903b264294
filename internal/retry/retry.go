// Package retry runs calls to external providers under a bounded
// exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy configures attempts and backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Retryable decides whether an error is worth another attempt.
	// Nil retries every error.
	Retryable func(error) bool
}

// DefaultPolicy retries rate limits a few times with backoff starting at 60s,
// the provider's usual reset window.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   60 * time.Second,
		MaxDelay:    5 * time.Minute,
		Multiplier:  2,
	}
}

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do calls fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx ends. The wait between attempts honours ctx.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.MaxAttempts, 1)

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return v, nil
	}

	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return zero, permanent.Unwrap()
	}
	if p.Retryable != nil && !p.Retryable(err) {
		return zero, err
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
}

// backOff translates the policy into a jitter-free exponential schedule.
// A missing MaxDelay leaves the schedule uncapped.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          max(p.Multiplier, 1),
		MaxInterval:         p.MaxDelay,
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.Reset()
	return b
}
