// Package retry implements the fixed-attempt retrying-call contract used at the exchange boundary.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"gridHedgeBot/internal/ports"
)

// Policy is a fixed number of attempts separated by a fixed delay.
// Retryable decides which errors are retried; nil means ports.IsTransient.
type Policy struct {
	Attempts  int
	Delay     time.Duration
	Retryable func(error) bool
}

// DefaultPolicy is 3 attempts, 5 seconds apart.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 5 * time.Second}
}

func (p Policy) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: p.Delay, Max: p.Delay, Factor: 1}
}

// Do calls fn until it succeeds, fails with a non-transient error, or the attempts are used up.
func Do(ctx context.Context, p Policy, op string, logger ports.Logger, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, op, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, logger ports.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = ports.IsTransient
	}
	b := p.newBackoff()

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil || !retryable(err) {
			return v, err
		}
		if attempt >= attempts {
			return v, fmt.Errorf("%s: giving up after %d attempts: %w", op, attempts, err)
		}

		wait := b.Duration()
		logger.Warn(ctx, op+": transient failure, retrying", map[string]interface{}{
			"attempt": attempt,
			"of":      attempts,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, err)
		case <-time.After(wait):
		}
	}
}
