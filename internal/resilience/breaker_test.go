package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUpstream = errors.New("upstream 503")

func newTestBreaker() (*Breaker, *testClock) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewBreaker(zap.NewNop(), WithBreakerClock(clock.Now)), clock
}

func fail() (int, error) { return 0, errUpstream }
func succeed() (int, error) { return 42, nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < DefaultFailureThreshold-1; i++ {
		_, err := Execute(b, fail)
		require.ErrorIs(t, err, errUpstream)
		assert.Equal(t, StateClosed, b.State())
	}

	_, err := Execute(b, fail)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 5, b.Snapshot().FailureCount)
}

func TestOpenBreakerFailsFastWithoutCallingOperation(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < DefaultFailureThreshold; i++ {
		_, _ = Execute(b, fail)
	}

	clock.Advance(10 * time.Second)
	called := false
	_, err := Execute(b, func() (int, error) {
		called = true
		return 1, nil
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < DefaultFailureThreshold; i++ {
		_, _ = Execute(b, fail)
	}

	clock.Advance(DefaultResetTimeout + time.Millisecond)
	var seen State
	v, err := Execute(b, func() (int, error) {
		seen = b.State()
		return succeed()
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StateHalfOpen, seen)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailureCount)
}

func TestBreakerExactlyAtTimeoutStaysOpen(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < DefaultFailureThreshold; i++ {
		_, _ = Execute(b, fail)
	}

	clock.Advance(DefaultResetTimeout)
	_, err := Execute(b, succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < DefaultFailureThreshold; i++ {
		_, _ = Execute(b, fail)
	}

	clock.Advance(DefaultResetTimeout + time.Second)
	_, err := Execute(b, fail)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, b.State())

	_, err = Execute(b, succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestClosedSuccessKeepsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()
	_, _ = Execute(b, fail)
	_, _ = Execute(b, fail)
	_, _ = Execute(b, succeed)

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 2, snap.FailureCount)
	assert.NotNil(t, snap.LastFailureTime)
}

func TestDo(t *testing.T) {
	b, _ := newTestBreaker()
	assert.NoError(t, b.Do(func() error { return nil }))
	assert.ErrorIs(t, b.Do(func() error { return errUpstream }), errUpstream)
}
