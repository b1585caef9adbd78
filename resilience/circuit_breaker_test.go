package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 3, SleepWindow: 50 * time.Millisecond, HalfOpenProbes: 1})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow())
		cb.RecordResult(boom)
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerRecoversAfterSleepWindow(t *testing.T) {
	cb := New(Config{Name: "test", FailureThreshold: 1, SleepWindow: 10 * time.Millisecond, HalfOpenProbes: 1})

	cb.Allow()
	cb.RecordResult(errors.New("boom"))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordResult(nil)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresUnclassifiedErrors(t *testing.T) {
	cb := New(Config{
		Name:             "test",
		FailureThreshold: 1,
		Classifier:       func(err error) bool { return false },
	})

	cb.Allow()
	cb.RecordResult(errors.New("config error, should not count"))
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryExhaustsBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, func() error {
		attempts++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 2, attempts)
}
