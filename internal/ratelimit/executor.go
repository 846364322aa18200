package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultMaxRetryDelay = 30 * time.Second

// Policy configures an Executor.
type Policy struct {
	// RequestsPerWindow caps dispatches per Window. Zero disables the cap.
	RequestsPerWindow int
	Window            time.Duration
	// MinSpacing separates consecutive dispatches.
	MinSpacing time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseRetryDelay is doubled for every retry, up to MaxRetryDelay.
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration

	// ShouldRetry reports whether a failed attempt may be retried.
	// A nil ShouldRetry never retries.
	ShouldRetry func(err error) bool

	// OnRetry is called before sleeping ahead of each retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// AttemptError annotates the final error of an Execute call with the number
// of attempts dispatched. It unwraps to the operation's own error.
type AttemptError struct {
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%v (after %d attempts)", e.Err, e.Attempts)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Attempts returns the attempt count recorded on err, or 0.
func Attempts(err error) int {
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		return attemptErr.Attempts
	}
	return 0
}

// Executor runs operations against one upstream under its Limiter and Policy.
// It is safe for concurrent use.
type Executor struct {
	name    string
	limiter *Limiter
	policy  Policy
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor with its own limiter.
func NewExecutor(name string, policy Policy) *Executor {
	limiter := NewLimiter(policy.RequestsPerWindow, policy.Window, policy.MinSpacing)
	return NewExecutorWithLimiter(name, limiter, policy)
}

// NewExecutorWithLimiter builds an executor that shares an existing limiter.
// The limiter fields of policy are ignored.
func NewExecutorWithLimiter(name string, limiter *Limiter, policy Policy) *Executor {
	if policy.MaxRetryDelay <= 0 {
		policy.MaxRetryDelay = defaultMaxRetryDelay
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Executor{
		name:    name,
		limiter: limiter,
		policy:  policy,
		sleep:   sleepContext,
	}
}

func (e *Executor) Name() string {
	return e.name
}

func (e *Executor) Limiter() *Limiter {
	return e.limiter
}

// Execute dispatches op through the limiter, retrying failures the policy
// allows. The returned error is nil or an *AttemptError.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				err = fmt.Errorf("%w: %w", err, lastErr)
			}
			return &AttemptError{Attempts: attempt - 1, Err: err}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt > e.policy.MaxRetries || !e.retryable(lastErr) {
			return &AttemptError{Attempts: attempt, Err: lastErr}
		}

		delay := e.backoff(attempt)
		if e.policy.OnRetry != nil {
			e.policy.OnRetry(attempt, lastErr, delay)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return &AttemptError{Attempts: attempt, Err: fmt.Errorf("%w: %w", err, lastErr)}
		}
	}
}

func (e *Executor) retryable(err error) bool {
	return e.policy.ShouldRetry != nil && e.policy.ShouldRetry(err)
}

// backoff returns BaseRetryDelay * 2^(attempt-1), capped at MaxRetryDelay.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.policy.BaseRetryDelay
	for i := 1; i < attempt && delay < e.policy.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > e.policy.MaxRetryDelay {
		delay = e.policy.MaxRetryDelay
	}
	return delay
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
