// Package retry provides a single configurable retry policy with
// exponential backoff. Call sites share one policy instead of
// reimplementing backoff loops per function.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth retrying.
	// Nil means every error is retried.
	Retryable func(error) bool
}

// DefaultPolicy returns a policy suitable for upstream HTTP reads.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Second,
	}
}

// NoRetry returns a policy that tries exactly once.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Backoff returns the delay before the given attempt (1-based).
// Attempt 1 has no delay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-2)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, the attempts are exhausted, or the
// context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := p.Backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return err
}
