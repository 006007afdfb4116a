package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one counted request
type Result struct {
	Limited   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Limit(ctx context.Context, key string) (Result, error)
	Max() int
}

// Rule is a request budget for one endpoint group
type Rule struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

var (
	APIRule     = Rule{Name: "API", MaxRequests: 100, Window: time.Minute}
	WebhookRule = Rule{Name: "Webhook", MaxRequests: 500, Window: time.Minute}
	OAuthRule   = Rule{Name: "OAuth", MaxRequests: 20, Window: time.Minute}
	InstallRule = Rule{Name: "Install", MaxRequests: 10, Window: time.Minute}
)

type record struct {
	count     int
	resetTime time.Time
}

// MemoryLimiter keeps windows in process memory. A window is thrown away
// once it has passed, so a burst straddling the boundary can see up to
// twice MaxRequests in quick succession.
type MemoryLimiter struct {
	mu      sync.Mutex
	records map[string]*record
	rule    Rule
	now     func() time.Time
}

type Option func(*MemoryLimiter)

func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) { l.now = now }
}

func NewMemoryLimiter(rule Rule, opts ...Option) *MemoryLimiter {
	l := &MemoryLimiter{
		records: make(map[string]*record),
		rule:    rule,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Max() int { return l.rule.MaxRequests }

func (l *MemoryLimiter) Limit(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || now.After(rec.resetTime) {
		rec = &record{resetTime: now.Add(l.rule.Window)}
		l.records[key] = rec
	}
	rec.count++

	return Result{
		Limited:   rec.count > l.rule.MaxRequests,
		Limit:     l.rule.MaxRequests,
		Remaining: max(0, l.rule.MaxRequests-rec.count),
		ResetTime: rec.resetTime,
	}, nil
}

// Sweep drops expired windows and returns how many were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, rec := range l.records {
		if now.After(rec.resetTime) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

// Len is the number of keys currently tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
