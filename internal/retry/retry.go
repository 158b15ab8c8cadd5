// Package retry provides a small, policy-driven wrapper around exponential
// backoff for transient failures when talking to external services.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how many times an operation is attempted and how the
// delay between attempts grows.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int
	// BaseDelay is the initial backoff interval.
	BaseDelay time.Duration
	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration
}

// DefaultPolicy suits short-lived HTTP calls to external APIs.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Do runs op, retrying transient failures with jittered exponential backoff
// until it succeeds, the attempt budget is exhausted, or ctx is cancelled.
// Wrap an error with Permanent to stop retrying immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		bo.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		bo.MaxInterval = p.MaxDelay
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(attempts)))
	return err
}

// Permanent marks err as non-retryable so Do returns it without further
// attempts. Use it for 4xx-style failures where retrying cannot help.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
