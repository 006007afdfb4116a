package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jafarshop/shopsync/pkg/errors"
)

func recordSleeps(opts *RetryOptions) *[]time.Duration {
	var slept []time.Duration
	opts.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return &slept
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	opts := RetryOptions{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2}
	slept := recordSleeps(&opts)

	calls := 0
	v, err := Retry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, opts)

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestRetryReturnsLastErrorUnchanged(t *testing.T) {
	opts := RetryOptions{MaxRetries: 2, InitialDelay: time.Millisecond}
	recordSleeps(&opts)

	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}
	calls := 0
	_, err := Retry(context.Background(), func(ctx context.Context) (int, error) {
		e := errs[calls]
		calls++
		return 0, e
	}, opts)

	assert.Equal(t, 3, calls)
	assert.Same(t, errs[2], err)
}

func TestRetryDelayIsCapped(t *testing.T) {
	opts := RetryOptions{MaxRetries: 6, InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}
	slept := recordSleeps(&opts)

	_, _ = Retry(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	}, opts)

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}, *slept)
}

func TestRetrySkipsNonRetryableErrors(t *testing.T) {
	notFound := &apperrors.ErrNotFound{Resource: "product", ID: "1"}
	opts := RetryOptions{
		MaxRetries: 5,
		Retryable:  IsTemporary,
	}
	slept := recordSleeps(&opts)

	calls := 0
	_, err := Retry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, notFound
	}, opts)

	assert.Equal(t, 1, calls)
	assert.Same(t, notFound, err)
	assert.Empty(t, *slept)
}

func TestRetryStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := RetryOptions{MaxRetries: 5}
	recordSleeps(&opts)

	boom := errors.New("boom")
	calls := 0
	_, err := Retry(ctx, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}, opts)

	assert.Equal(t, 1, calls)
	assert.Same(t, boom, err)
}

func TestRetryOnRetryHook(t *testing.T) {
	var attempts []int
	opts := RetryOptions{
		MaxRetries: 2,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			attempts = append(attempts, attempt)
		},
	}
	recordSleeps(&opts)

	_, _ = Retry(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("x")
	}, opts)

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, IsTemporary(&apperrors.ErrUpstream{StatusCode: 503}))
	assert.True(t, IsTemporary(&apperrors.ErrUpstream{StatusCode: 429}))
	assert.False(t, IsTemporary(&apperrors.ErrUpstream{StatusCode: 404}))
	assert.False(t, IsTemporary(errors.New("plain")))
}

func TestRetryWithRealSleep(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("once")
		}
		return 7, nil
	}, RetryOptions{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
