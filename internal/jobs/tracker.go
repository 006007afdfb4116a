package jobs

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/pkg/errors"
)

// Retention is how long completed jobs stay visible to pollers.
const Retention = 24 * time.Hour

// Progress is the share of a running job that is done
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Job is the lifecycle record pollers see on /api/sync/status/:jobId
type Job struct {
	ID          string           `json:"id"`
	Type        domain.JobType   `json:"type"`
	ShopDomain  string           `json:"shopDomain"`
	Status      domain.JobStatus `json:"status"`
	Progress    *Progress        `json:"progress,omitempty"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     *time.Time       `json:"endTime,omitempty"`
	Duration    *int64           `json:"duration,omitempty"` // milliseconds
	Result      any              `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Priority    int              `json:"priority"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"maxAttempts"`

	// Data is the worker payload; it never leaves the process.
	Data any `json:"-"`
}

// IsActive reports whether the job may still change
func (j *Job) IsActive() bool {
	return j.Status == domain.JobStatusPending || j.Status == domain.JobStatusRunning
}

func (j *Job) clone() *Job {
	cp := *j
	if j.Progress != nil {
		p := *j.Progress
		cp.Progress = &p
	}
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	if j.Duration != nil {
		d := *j.Duration
		cp.Duration = &d
	}
	if j.Metadata != nil {
		cp.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// NewJobID returns "<prefix>_<unix ms>_<8 hex chars>".
func NewJobID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), uuid.NewString()[:8])
}

// Tracker is the registry of job lifecycle records. Every method on an
// unknown id is a no-op that returns nil.
type Tracker struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	now    func() time.Time
	logger *zap.Logger
}

type TrackerOption func(*Tracker)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(logger *zap.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		jobs:   make(map[string]*Job),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CreateJob registers a pending job. Metadata is copied and never changed afterwards.
func (t *Tracker) CreateJob(id string, jobType domain.JobType, shopDomain string, metadata map[string]any) *Job {
	job := &Job{
		ID:         id,
		Type:       jobType,
		ShopDomain: shopDomain,
		Status:     domain.JobStatusPending,
		StartTime:  t.now(),
	}
	if metadata != nil {
		job.Metadata = make(map[string]any, len(metadata))
		for k, v := range metadata {
			job.Metadata[k] = v
		}
	}

	t.mu.Lock()
	t.jobs[id] = job
	t.mu.Unlock()

	t.logger.Info("Job created",
		zap.String("job_id", id),
		zap.String("type", string(jobType)),
		zap.String("shop", shopDomain),
	)
	return job.clone()
}

// StartJob marks the job running and restarts its clock.
func (t *Tracker) StartJob(id string) *Job {
	return t.update(id, domain.JobStatusRunning, func(job *Job, now time.Time) {
		job.StartTime = now
	})
}

// UpdateProgress records current/total. A non-positive total is a caller bug and is ignored.
func (t *Tracker) UpdateProgress(id string, current, total int) *Job {
	if total <= 0 {
		t.logger.Warn("Ignoring progress update with non-positive total",
			zap.String("job_id", id),
			zap.Int("current", current),
			zap.Int("total", total),
		)
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil
	}
	if job.Progress != nil && job.Progress.Total == total && current < job.Progress.Current {
		t.logger.Warn("Ignoring progress regression",
			zap.String("job_id", id),
			zap.Int("current", current),
			zap.Int("previous", job.Progress.Current),
		)
		return job.clone()
	}

	job.Progress = &Progress{
		Current:    current,
		Total:      total,
		Percentage: int(math.Round(float64(current) / float64(total) * 100)),
	}
	return job.clone()
}

// CompleteJob finishes the job with result.
func (t *Tracker) CompleteJob(id string, result any) *Job {
	job := t.update(id, domain.JobStatusCompleted, func(job *Job, now time.Time) {
		t.finish(job, now)
		job.Result = result
		job.Error = ""
	})
	if job != nil {
		t.logger.Info("Job completed", zap.String("job_id", id), zap.Int64("duration_ms", *job.Duration))
	}
	return job
}

// FailJob finishes the job with a human readable error.
func (t *Tracker) FailJob(id string, message string) *Job {
	job := t.update(id, domain.JobStatusFailed, func(job *Job, now time.Time) {
		t.finish(job, now)
		job.Error = message
		job.Result = nil
	})
	if job != nil {
		t.logger.Warn("Job failed", zap.String("job_id", id), zap.String("error", message))
	}
	return job
}

// Requeue moves a running job back to pending for another attempt.
func (t *Tracker) Requeue(id string) *Job {
	return t.update(id, domain.JobStatusPending, func(job *Job, now time.Time) {})
}

// GetJob returns a copy of the job, or nil.
func (t *Tracker) GetJob(id string) *Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil
	}
	return job.clone()
}

// GetJobsByShop returns copies of every job for the shop, newest first.
func (t *Tracker) GetJobsByShop(shopDomain string) []*Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Job
	for _, job := range t.jobs {
		if job.ShopDomain == shopDomain {
			out = append(out, job.clone())
		}
	}
	sortNewestFirst(out)
	return out
}

// Cleanup drops completed jobs that ended more than Retention ago.
// Failed jobs are kept for diagnosis.
func (t *Tracker) Cleanup() int {
	cutoff := t.now().Add(-Retention)

	t.mu.Lock()
	cleaned := 0
	for id, job := range t.jobs {
		if job.Status == domain.JobStatusCompleted && job.EndTime != nil && job.EndTime.Before(cutoff) {
			delete(t.jobs, id)
			cleaned++
		}
	}
	t.mu.Unlock()

	if cleaned > 0 {
		t.logger.Info("Cleaned up old jobs", zap.Int("count", cleaned))
	}
	return cleaned
}

// Counts returns the number of tracked jobs per status.
func (t *Tracker) Counts() map[domain.JobStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[domain.JobStatus]int, 4)
	for _, job := range t.jobs {
		counts[job.Status]++
	}
	return counts
}

func (t *Tracker) setQueueFields(id string, priority, attempts, maxAttempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if job, ok := t.jobs[id]; ok {
		job.Priority = priority
		job.Attempts = attempts
		job.MaxAttempts = maxAttempts
	}
}

func (t *Tracker) update(id string, to domain.JobStatus, apply func(job *Job, now time.Time)) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return nil
	}
	if !job.Status.CanTransitionTo(to) {
		err := &errors.ErrInvalidStateTransition{From: job.Status, To: to}
		t.logger.Warn("Rejected job transition", zap.String("job_id", id), zap.Error(err))
		return nil
	}

	job.Status = to
	apply(job, t.now())
	return job.clone()
}

func (t *Tracker) finish(job *Job, now time.Time) {
	end := now
	duration := end.Sub(job.StartTime).Milliseconds()
	job.EndTime = &end
	job.Duration = &duration
}

func sortNewestFirst(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.After(jobs[j].StartTime)
	})
}
