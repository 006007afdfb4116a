package resilience

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without calling the operation while the breaker cools down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// BreakerSnapshot is a point-in-time view for metrics endpoints
type BreakerSnapshot struct {
	State           State      `json:"state"`
	FailureCount    int        `json:"failureCount"`
	LastFailureTime *time.Time `json:"lastFailureTime,omitempty"`
}

// Breaker guards calls to the Shopify API. Failures are counted across calls
// and only a success while half-open resets them.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failureCount int
	lastFailure  time.Time

	threshold    int
	resetTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

type BreakerOption func(*Breaker)

func WithThreshold(n int) BreakerOption {
	return func(b *Breaker) { b.threshold = n }
}

func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) { b.resetTimeout = d }
}

func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

func NewBreaker(logger *zap.Logger, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		state:        StateClosed,
		threshold:    DefaultFailureThreshold,
		resetTimeout: DefaultResetTimeout,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs op through the breaker.
func Execute[T any](b *Breaker, op func() (T, error)) (T, error) {
	var zero T
	if err := b.before(); err != nil {
		return zero, err
	}

	result, err := op()
	b.after(err)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// Do is Execute for operations without a result.
func (b *Breaker) Do(op func() error) error {
	_, err := Execute(b, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) > b.resetTimeout {
		b.setState(StateHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == StateHalfOpen {
			b.failureCount = 0
			b.setState(StateClosed)
		}
		return
	}

	b.failureCount++
	b.lastFailure = b.now()
	if b.failureCount >= b.threshold && b.state != StateOpen {
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.logger.Info("Circuit breaker state changed",
		zap.String("from", string(b.state)),
		zap.String("to", string(s)),
		zap.Int("failures", b.failureCount),
	)
	b.state = s
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{State: b.state, FailureCount: b.failureCount}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		snap.LastFailureTime = &t
	}
	return snap
}
