package resilience

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryOptions configure Retry. Zero delays and factor fall back to DefaultRetryOptions.
type RetryOptions struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable decides whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:    5,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}
}

func (o RetryOptions) withDefaults() RetryOptions {
	d := DefaultRetryOptions()
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = d.InitialDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.BackoffFactor <= 0 {
		o.BackoffFactor = d.BackoffFactor
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	return o
}

// Delay is the wait after the given zero-based failed attempt.
func (o RetryOptions) Delay(attempt int) time.Duration {
	d := float64(o.InitialDelay) * math.Pow(o.BackoffFactor, float64(attempt))
	if d > float64(o.MaxDelay) {
		return o.MaxDelay
	}
	return time.Duration(d)
}

// Retry calls op until it succeeds, returns a non-retryable error, or has
// been retried MaxRetries times. The last error is returned unchanged, also
// when ctx ends during a wait.
func Retry[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts RetryOptions) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if opts.Retryable != nil && !opts.Retryable(err) {
			return zero, err
		}
		if attempt == opts.MaxRetries {
			break
		}

		delay := opts.Delay(attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, err)
		}
		if err := opts.sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// IsTemporary matches errors exposing Temporary() bool, like upstream 5xx answers.
func IsTemporary(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
