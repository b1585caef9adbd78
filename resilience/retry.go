// Package resilience provides the circuit breaker and retry/backoff helpers
// shared by every outbound call in the module: LLM requests, integration
// execute_search calls, and browser scrapes.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrMaxRetriesExceeded is returned by Retry when fn never succeeded within
// the configured attempt budget.
var ErrMaxRetriesExceeded = errors.New("resilience: max retry attempts exceeded")

// RetryConfig configures Retry's exponential backoff schedule.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig matches spec.md's "2s, 4s, 8s" bounded backoff for
// integration rate-limit handling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     8 * time.Second,
	}
}

// Retry executes fn, retrying with jittered exponential backoff
// (github.com/cenkalti/backoff/v5) up to cfg.MaxAttempts times. A fn that
// returns a *backoff.PermanentError stops the retry loop immediately,
// surfacing the wrapped error.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = 2.0

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		return struct{}{}, fn()
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, err)
	}
	return nil
}

// Permanent wraps err so Retry stops immediately instead of exhausting its
// attempt budget — used when a failure is known not to be transient (e.g. a
// config error surfaced mid-retry).
func Permanent(err error) error {
	return backoff.Permanent(err)
}
