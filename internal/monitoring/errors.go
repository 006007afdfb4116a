package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity ranks a tracked error
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	maxTrackedErrors = 100
	alertTimeout     = 5 * time.Second
)

// TrackedError is one recorded failure
type TrackedError struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	Severity  Severity       `json:"severity"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter delivers critical errors somewhere a human will see them.
type Alerter interface {
	Alert(ctx context.Context, e TrackedError) error
}

// ErrorHandler observes every tracked error.
type ErrorHandler func(TrackedError)

type ErrorTracker struct {
	mu       sync.RWMutex
	errors   []TrackedError
	handlers map[int]ErrorHandler
	nextID   int

	alerter Alerter
	logger  *zap.Logger
	now     func() time.Time
}

func NewErrorTracker(logger *zap.Logger, alerter Alerter) *ErrorTracker {
	return &ErrorTracker{
		handlers: make(map[int]ErrorHandler),
		alerter:  alerter,
		logger:   logger,
		now:      time.Now,
	}
}

// Track records err, logs it at a level matching sev and notifies handlers.
// Critical errors are also sent to the alerter, if one is configured.
func (t *ErrorTracker) Track(ctx context.Context, err error, sev Severity, fields map[string]any) TrackedError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	code := ""
	if c, ok := err.(interface{ Code() string }); ok {
		code = c.Code()
	}
	return t.TrackMessage(ctx, msg, code, sev, fields)
}

func (t *ErrorTracker) TrackMessage(ctx context.Context, msg, code string, sev Severity, fields map[string]any) TrackedError {
	e := TrackedError{
		ID:        uuid.NewString(),
		Message:   msg,
		Code:      code,
		Severity:  sev,
		Context:   fields,
		Timestamp: t.now(),
	}

	t.mu.Lock()
	t.errors = append(t.errors, e)
	if len(t.errors) > maxTrackedErrors {
		t.errors = t.errors[len(t.errors)-maxTrackedErrors:]
	}
	handlers := make([]ErrorHandler, 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	t.log(e)

	for _, h := range handlers {
		t.safeCall(h, e)
	}

	if sev == SeverityCritical && t.alerter != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
		defer cancel()
		if err := t.alerter.Alert(actx, e); err != nil {
			t.logger.Error("Failed to send alert", zap.String("error_id", e.ID), zap.Error(err))
		}
	}
	return e
}

func (t *ErrorTracker) log(e TrackedError) {
	fields := []zap.Field{
		zap.String("error_id", e.ID),
		zap.String("severity", string(e.Severity)),
		zap.String("error", e.Message),
	}
	if e.Code != "" {
		fields = append(fields, zap.String("code", e.Code))
	}
	if len(e.Context) > 0 {
		fields = append(fields, zap.Any("context", e.Context))
	}

	switch e.Severity {
	case SeverityLow:
		t.logger.Info("Tracked error", fields...)
	case SeverityMedium:
		t.logger.Warn("Tracked error", fields...)
	default:
		t.logger.Error("Tracked error", fields...)
	}
}

func (t *ErrorTracker) safeCall(h ErrorHandler, e TrackedError) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Error handler panicked", zap.Any("panic", r))
		}
	}()
	h(e)
}

// OnError registers h and returns a func that removes it.
func (t *ErrorTracker) OnError(h ErrorHandler) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.handlers[id] = h
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.handlers, id)
		t.mu.Unlock()
	}
}

// Recent returns up to limit errors, newest first. limit <= 0 means all.
func (t *ErrorTracker) Recent(limit int) []TrackedError {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.errors)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]TrackedError, 0, n)
	for i := len(t.errors) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, t.errors[i])
	}
	return out
}

func (t *ErrorTracker) CountBySeverity() map[Severity]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := map[Severity]int{
		SeverityLow:      0,
		SeverityMedium:   0,
		SeverityHigh:     0,
		SeverityCritical: 0,
	}
	for _, e := range t.errors {
		counts[e.Severity]++
	}
	return counts
}
