package jobs

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
)

// fakeClock is a settable time source shared by tracker and queue tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(clock *fakeClock) *Tracker {
	return NewTracker(zap.NewNop(), WithClock(clock.Now))
}

func TestNewJobIDFormat(t *testing.T) {
	id := NewJobID("bulk_sync", time.UnixMilli(1700000000123))
	assert.Regexp(t, regexp.MustCompile(`^bulk_sync_1700000000123_[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewJobID("bulk_sync", time.UnixMilli(1700000000123)))
}

func TestTrackerLifecycle(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	created := tr.CreateJob("j1", domain.JobTypeFullSync, "demo.myshopify.com", map[string]any{"userAgent": "curl"})
	assert.Equal(t, domain.JobStatusPending, created.Status)
	assert.Nil(t, created.EndTime)

	clock.Advance(time.Second)
	started := tr.StartJob("j1")
	require.NotNil(t, started)
	assert.Equal(t, domain.JobStatusRunning, started.Status)
	assert.Equal(t, clock.Now(), started.StartTime)

	clock.Advance(1500 * time.Millisecond)
	done := tr.CompleteJob("j1", map[string]int{"synced": 3})
	require.NotNil(t, done)
	assert.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.EndTime)
	require.NotNil(t, done.Duration)
	assert.Equal(t, int64(1500), *done.Duration)
	assert.Equal(t, map[string]int{"synced": 3}, done.Result)
	assert.Empty(t, done.Error)
	assert.Equal(t, "curl", done.Metadata["userAgent"])
}

func TestTrackerFailSetsError(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.CreateJob("j1", domain.JobTypeBulkSync, "demo.myshopify.com", nil)
	tr.StartJob("j1")

	failed := tr.FailJob("j1", "upstream unavailable")
	require.NotNil(t, failed)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	assert.Equal(t, "upstream unavailable", failed.Error)
	assert.Nil(t, failed.Result)
	assert.NotNil(t, failed.EndTime)
}

func TestTrackerUnknownIDIsNoop(t *testing.T) {
	tr := newTestTracker(newFakeClock())

	assert.Nil(t, tr.GetJob("missing"))
	assert.Nil(t, tr.StartJob("missing"))
	assert.Nil(t, tr.UpdateProgress("missing", 1, 2))
	assert.Nil(t, tr.CompleteJob("missing", nil))
	assert.Nil(t, tr.FailJob("missing", "x"))
	assert.Empty(t, tr.GetJobsByShop("demo.myshopify.com"))
}

func TestTrackerRejectsBackwardTransitions(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.CreateJob("j1", domain.JobTypeFullSync, "demo.myshopify.com", nil)
	tr.StartJob("j1")
	tr.CompleteJob("j1", nil)

	assert.Nil(t, tr.StartJob("j1"))
	assert.Nil(t, tr.FailJob("j1", "late"))
	assert.Equal(t, domain.JobStatusCompleted, tr.GetJob("j1").Status)
}

func TestUpdateProgressPercentage(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.CreateJob("j1", domain.JobTypeBulkSync, "demo.myshopify.com", nil)
	tr.StartJob("j1")

	job := tr.UpdateProgress("j1", 30, 120)
	require.NotNil(t, job)
	assert.Equal(t, Progress{Current: 30, Total: 120, Percentage: 25}, *job.Progress)

	job = tr.UpdateProgress("j1", 1, 3)
	assert.Equal(t, 33, job.Progress.Percentage)

	job = tr.UpdateProgress("j1", 2, 3)
	assert.Equal(t, 67, job.Progress.Percentage)
}

func TestUpdateProgressZeroTotalIsIgnored(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.CreateJob("j1", domain.JobTypeBulkSync, "demo.myshopify.com", nil)
	tr.StartJob("j1")
	tr.UpdateProgress("j1", 5, 10)

	assert.Nil(t, tr.UpdateProgress("j1", 0, 0))
	assert.Nil(t, tr.UpdateProgress("j1", 3, -1))
	assert.Equal(t, 50, tr.GetJob("j1").Progress.Percentage)
}

func TestUpdateProgressDoesNotRegress(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.CreateJob("j1", domain.JobTypeBulkSync, "demo.myshopify.com", nil)
	tr.StartJob("j1")
	tr.UpdateProgress("j1", 50, 100)

	job := tr.UpdateProgress("j1", 10, 100)
	assert.Equal(t, 50, job.Progress.Current)
}

func TestGetJobReturnsCopy(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.CreateJob("j1", domain.JobTypeFullSync, "demo.myshopify.com", map[string]any{"k": "v"})

	job := tr.GetJob("j1")
	job.Status = domain.JobStatusFailed
	job.Metadata["k"] = "changed"

	again := tr.GetJob("j1")
	assert.Equal(t, domain.JobStatusPending, again.Status)
	assert.Equal(t, "v", again.Metadata["k"])
}

func TestGetJobsByShop(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)
	tr.CreateJob("a1", domain.JobTypeFullSync, "a.myshopify.com", nil)
	clock.Advance(time.Second)
	tr.CreateJob("a2", domain.JobTypeProductSync, "a.myshopify.com", nil)
	tr.CreateJob("b1", domain.JobTypeFullSync, "b.myshopify.com", nil)

	jobs := tr.GetJobsByShop("a.myshopify.com")
	require.Len(t, jobs, 2)
	assert.Equal(t, "a2", jobs[0].ID)
	assert.Equal(t, "a1", jobs[1].ID)
}

func TestCleanupRemovesOnlyOldCompletedJobs(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	for _, id := range []string{"done", "failed", "running", "pending"} {
		tr.CreateJob(id, domain.JobTypeFullSync, "demo.myshopify.com", nil)
	}
	tr.StartJob("done")
	tr.CompleteJob("done", nil)
	tr.StartJob("failed")
	tr.FailJob("failed", "boom")
	tr.StartJob("running")

	clock.Advance(25 * time.Hour)
	tr.CreateJob("fresh", domain.JobTypeFullSync, "demo.myshopify.com", nil)
	tr.StartJob("fresh")
	tr.CompleteJob("fresh", nil)

	assert.Equal(t, 1, tr.Cleanup())

	assert.Nil(t, tr.GetJob("done"))
	assert.NotNil(t, tr.GetJob("failed"), "failed jobs are retained")
	assert.NotNil(t, tr.GetJob("running"))
	assert.NotNil(t, tr.GetJob("pending"))
	assert.NotNil(t, tr.GetJob("fresh"))
}

func TestCounts(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.CreateJob("a", domain.JobTypeFullSync, "demo.myshopify.com", nil)
	tr.CreateJob("b", domain.JobTypeFullSync, "demo.myshopify.com", nil)
	tr.StartJob("b")

	counts := tr.Counts()
	assert.Equal(t, 1, counts[domain.JobStatusPending])
	assert.Equal(t, 1, counts[domain.JobStatusRunning])
}
