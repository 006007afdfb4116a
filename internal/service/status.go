package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/jobs"
	"github.com/jafarshop/shopsync/pkg/errors"
)

const (
	statusLogWindow = 100
	recentLogCount  = 10
)

// JobStatusView is a job as pollers see it
type JobStatusView struct {
	*jobs.Job
	IsActive               bool   `json:"isActive"`
	ElapsedTime            int64  `json:"elapsedTime"`            // milliseconds
	EstimatedTimeRemaining *int64 `json:"estimatedTimeRemaining"` // milliseconds, null when unknown
}

// ShopSyncStatus aggregates the recent sync activity of one shop
type ShopSyncStatus struct {
	ShopDomain      string            `json:"shopDomain"`
	TotalProducts   int               `json:"totalProducts"`
	LastSyncTime    *time.Time        `json:"lastSyncTime"`
	SuccessfulSyncs int               `json:"successfulSyncs"`
	FailedSyncs     int               `json:"failedSyncs"`
	PendingSyncs    int               `json:"pendingSyncs"`
	RecentLogs      []*domain.SyncLog `json:"recentLogs"`
}

// JobStatus returns the job with its derived timing fields.
func (s *SyncService) JobStatus(jobID string) (*JobStatusView, error) {
	job := s.tracker.GetJob(jobID)
	if job == nil {
		return nil, &errors.ErrNotFound{Resource: "job", ID: jobID}
	}
	return newJobStatusView(job, s.now()), nil
}

func newJobStatusView(job *jobs.Job, now time.Time) *JobStatusView {
	end := now
	if job.EndTime != nil {
		end = *job.EndTime
	}
	elapsed := end.Sub(job.StartTime).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	view := &JobStatusView{Job: job, IsActive: job.IsActive(), ElapsedTime: elapsed}
	if job.Status == domain.JobStatusRunning && job.Progress != nil && job.Progress.Percentage > 0 {
		pct := float64(job.Progress.Percentage)
		remaining := int64(math.Round(float64(elapsed) / pct * (100 - pct)))
		view.EstimatedTimeRemaining = &remaining
	}
	return view
}

// JobsByShop lists the tracked jobs of a shop, newest first.
func (s *SyncService) JobsByShop(shopDomain string) []*JobStatusView {
	list := s.tracker.GetJobsByShop(shopDomain)
	now := s.now()
	out := make([]*JobStatusView, 0, len(list))
	for _, job := range list {
		out = append(out, newJobStatusView(job, now))
	}
	return out
}

// SyncStatus counts the outcomes of the last 100 sync logs of a shop.
func (s *SyncService) SyncStatus(ctx context.Context, shopDomain string) (*ShopSyncStatus, error) {
	logs, err := s.repos.SyncLog.ListByShop(ctx, shopDomain, statusLogWindow)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	total, err := s.repos.Product.CountByShop(ctx, shopDomain)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	status := &ShopSyncStatus{
		ShopDomain:    shopDomain,
		TotalProducts: total,
		RecentLogs:    append([]*domain.SyncLog{}, logs[:min(recentLogCount, len(logs))]...),
	}
	if len(logs) > 0 {
		last := logs[0].CreatedAt
		status.LastSyncTime = &last
	}
	for _, l := range logs {
		switch l.Status {
		case domain.SyncStatusSuccess:
			status.SuccessfulSyncs++
		case domain.SyncStatusError:
			status.FailedSyncs++
		case domain.SyncStatusPending:
			status.PendingSyncs++
		}
	}
	return status, nil
}
