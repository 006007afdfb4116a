package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []TrackedError
	err    error
}

func (a *recordingAlerter) Alert(ctx context.Context, e TrackedError) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, e)
	return a.err
}

func TestTrackKeepsNewestFirst(t *testing.T) {
	tr := NewErrorTracker(zap.NewNop(), nil)
	ctx := context.Background()

	tr.Track(ctx, errors.New("first"), SeverityLow, nil)
	tr.Track(ctx, errors.New("second"), SeverityMedium, map[string]any{"shop": "a.myshopify.com"})
	tr.Track(ctx, errors.New("third"), SeverityHigh, nil)

	recent := tr.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Message)
	assert.Equal(t, "second", recent[1].Message)
	assert.Equal(t, "a.myshopify.com", recent[1].Context["shop"])
	assert.NotEmpty(t, recent[0].ID)

	assert.Len(t, tr.Recent(0), 3)
}

func TestTrackBoundsHistory(t *testing.T) {
	tr := NewErrorTracker(zap.NewNop(), nil)
	for i := 0; i < maxTrackedErrors+20; i++ {
		tr.Track(context.Background(), errors.New("boom"), SeverityLow, nil)
	}
	assert.Len(t, tr.Recent(0), maxTrackedErrors)
}

func TestTrackNilError(t *testing.T) {
	tr := NewErrorTracker(zap.NewNop(), nil)
	e := tr.Track(context.Background(), nil, SeverityLow, nil)
	assert.Equal(t, "unknown error", e.Message)
}

func TestCriticalErrorsAlert(t *testing.T) {
	alerter := &recordingAlerter{err: errors.New("slack down")}
	tr := NewErrorTracker(zap.NewNop(), alerter)
	ctx := context.Background()

	tr.Track(ctx, errors.New("db gone"), SeverityHigh, nil)
	assert.Empty(t, alerter.alerts)

	// a failing alerter does not break tracking
	e := tr.Track(ctx, errors.New("db gone for good"), SeverityCritical, nil)
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, e.ID, alerter.alerts[0].ID)
	assert.Len(t, tr.Recent(0), 2)
}

func TestOnErrorUnsubscribe(t *testing.T) {
	tr := NewErrorTracker(zap.NewNop(), nil)
	var got []Severity
	unsubscribe := tr.OnError(func(e TrackedError) { got = append(got, e.Severity) })

	tr.Track(context.Background(), errors.New("x"), SeverityMedium, nil)
	unsubscribe()
	tr.Track(context.Background(), errors.New("y"), SeverityHigh, nil)

	assert.Equal(t, []Severity{SeverityMedium}, got)
}

func TestPanickingHandlerIsContained(t *testing.T) {
	tr := NewErrorTracker(zap.NewNop(), nil)
	tr.OnError(func(TrackedError) { panic("bad handler") })

	assert.NotPanics(t, func() {
		tr.Track(context.Background(), errors.New("x"), SeverityLow, nil)
	})
}

func TestCountBySeverity(t *testing.T) {
	tr := NewErrorTracker(zap.NewNop(), nil)
	ctx := context.Background()
	tr.Track(ctx, errors.New("a"), SeverityHigh, nil)
	tr.Track(ctx, errors.New("b"), SeverityHigh, nil)
	tr.Track(ctx, errors.New("c"), SeverityLow, nil)

	counts := tr.CountBySeverity()
	assert.Equal(t, 2, counts[SeverityHigh])
	assert.Equal(t, 1, counts[SeverityLow])
	assert.Equal(t, 0, counts[SeverityCritical])
}

func TestSlackAlerterPostsAttachment(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewSlackAlerter(srv.URL, "#alerts")
	err := a.Alert(context.Background(), TrackedError{
		ID:        "err-1",
		Message:   "database unreachable",
		Severity:  SeverityCritical,
		Context:   map[string]any{"shop": "demo.myshopify.com"},
		Timestamp: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "#alerts", body["channel"])
	attachments, ok := body["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "danger", att["color"])
	assert.Equal(t, "database unreachable", att["title"])
}

func TestSlackAlerterReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSlackAlerter(srv.URL, "").Alert(context.Background(), TrackedError{Severity: SeverityCritical})
	assert.Error(t, err)
}

func TestSlackAlerterWithoutURLIsNoop(t *testing.T) {
	assert.NoError(t, NewSlackAlerter("", "").Alert(context.Background(), TrackedError{}))
}

func TestCollectorSnapshot(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := NewCollector().WithClock(func() time.Time { return now })

	c.Increment("webhook.received", map[string]string{"topic": "products/update"})
	c.Increment("webhook.received", nil)
	c.Decrement("webhook.received", nil)
	c.Track("queue.length", 7, nil)
	c.Timing("sync.full.duration", now.Add(-1500*time.Millisecond), nil)

	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "queue.length", snap[0].Name)
	assert.Equal(t, "sync.full.duration", snap[1].Name)
	assert.Equal(t, 1500.0, snap[1].Last)

	received := snap[2]
	assert.Equal(t, 3, received.Count)
	assert.Equal(t, 1.0, received.Sum)
	assert.Equal(t, -1.0, received.Min)
	assert.Equal(t, 1.0, received.Max)
	assert.InDelta(t, 1.0/3.0, received.Avg, 1e-9)
}

func TestCollectorBoundsSamples(t *testing.T) {
	c := NewCollector()
	for i := 0; i < maxSamples+5; i++ {
		c.Track("x", float64(i), nil)
	}
	samples := c.Samples("x")
	require.Len(t, samples, maxSamples)
	assert.Equal(t, 5.0, samples[0].Value)
}
