package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.status)
}

func retryOn503(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == 503
}

// recordSleeps swaps the executor's sleep for one that only records delays.
func recordSleeps(e *Executor) *[]time.Duration {
	var delays []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &delays
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	exec := NewExecutor("test", Policy{MaxRetries: 3, BaseRetryDelay: time.Millisecond, ShouldRetry: retryOn503})
	delays := recordSleeps(exec)

	calls := 0
	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestExecuteRetriesTransientWithIncreasingBackoff(t *testing.T) {
	var retried []int
	exec := NewExecutor("test", Policy{
		MaxRetries:     3,
		BaseRetryDelay: 10 * time.Millisecond,
		ShouldRetry:    retryOn503,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		},
	})
	delays := recordSleeps(exec)

	calls := 0
	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return &statusError{status: 503}
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, *delays)
	for i := 1; i < len(*delays); i++ {
		assert.Greater(t, (*delays)[i], (*delays)[i-1])
	}
	assert.Equal(t, []int{1, 2, 3}, retried)

	var attemptErr *AttemptError
	require.ErrorAs(t, err, &attemptErr)
	assert.Equal(t, 4, attemptErr.Attempts)
	assert.Equal(t, 4, Attempts(err))

	var se *statusError
	require.ErrorAs(t, err, &se, "the original error propagates unchanged")
	assert.Equal(t, 503, se.status)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	exec := NewExecutor("test", Policy{MaxRetries: 3, BaseRetryDelay: time.Millisecond, ShouldRetry: retryOn503})
	delays := recordSleeps(exec)

	calls := 0
	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return &statusError{status: 404}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
	assert.Equal(t, 1, Attempts(err))
}

func TestExecuteWithoutPredicateNeverRetries(t *testing.T) {
	exec := NewExecutor("test", Policy{MaxRetries: 5})
	recordSleeps(exec)

	calls := 0
	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return &statusError{status: 503}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffIsCapped(t *testing.T) {
	exec := NewExecutor("test", Policy{BaseRetryDelay: 10 * time.Second})

	assert.Equal(t, 10*time.Second, exec.backoff(1))
	assert.Equal(t, 20*time.Second, exec.backoff(2))
	assert.Equal(t, 30*time.Second, exec.backoff(3))
	assert.Equal(t, 30*time.Second, exec.backoff(10))
}

func TestExecuteAbortsBackoffOnCancel(t *testing.T) {
	exec := NewExecutor("test", Policy{MaxRetries: 3, BaseRetryDelay: time.Hour, ShouldRetry: retryOn503})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := exec.Execute(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &statusError{status: 503}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	var se *statusError
	assert.ErrorAs(t, err, &se)
}

func TestExecuteCountsRetriesAgainstBudget(t *testing.T) {
	exec := NewExecutor("test", Policy{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		MaxRetries:        2,
		ShouldRetry:       retryOn503,
	})
	recordSleeps(exec)

	_ = exec.Execute(context.Background(), func(ctx context.Context) error {
		return &statusError{status: 503}
	})

	assert.Equal(t, 3, exec.Limiter().Snapshot().InWindow)
}

func TestDoReturnsValueAfterRetry(t *testing.T) {
	exec := NewExecutor("test", Policy{MaxRetries: 2, BaseRetryDelay: time.Millisecond, ShouldRetry: retryOn503})
	recordSleeps(exec)

	calls := 0
	got, err := Do(context.Background(), exec, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &statusError{status: 503}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestExecutorsSharingLimiter(t *testing.T) {
	shared := NewLimiter(1, time.Hour, 0)
	a := NewExecutorWithLimiter("a", shared, Policy{})
	b := NewExecutorWithLimiter("b", shared, Policy{})

	require.NoError(t, a.Execute(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, Attempts(err))
}
