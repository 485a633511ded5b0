package errors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:   max,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice
	var calls int32
	fn := func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return NetworkError("connection refused", nil)
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: the third attempt wins
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	var calls int32
	base := errors.New("down")

	err := Retry(context.Background(), fastRetry(2), func() error {
		atomic.AddInt32(&calls, 1)
		return base
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetry_ShouldRetryStopsEarly(t *testing.T) {
	// Given: a predicate that only retries retryable DocErrors
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable
	var calls int32

	// When: the function returns a validation error
	err := Retry(context.Background(), cfg, func() error {
		atomic.AddInt32(&calls, 1)
		return ValidationError("bad dsn", nil)
	})

	// Then: no retries happen and the error is returned unchanged
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
	assert.NotContains(t, err.Error(), "failed after")
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, InitialDelay: time.Second, Multiplier: 2}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Retry(ctx, cfg, func() error { return errors.New("nope") })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false

	err := Retry(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryWithResult(t *testing.T) {
	var calls int
	got, err := RetryWithResult(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = RetryWithResult(context.Background(), fastRetry(1), func() (int, error) {
		return 7, errors.New("always")
	})
	require.Error(t, err)
	assert.Zero(t, got)
}

func TestRetry_WithJitterStillCompletes(t *testing.T) {
	cfg := fastRetry(3)
	cfg.Jitter = true
	var calls int32

	err := Retry(context.Background(), cfg, func() error {
		if atomic.AddInt32(&calls, 1) < 4 {
			return errors.New("again")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.InDelta(t, 2.0, cfg.Multiplier, 0.0001)
}
