package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/events"
	"github.com/jafarshop/shopsync/internal/resilience"
	"github.com/jafarshop/shopsync/internal/shopify"
)

// firstScheduledWindow is how far back the first scheduled incremental sync looks.
const firstScheduledWindow = 24 * time.Hour

// FullSyncResult is the result of a full_sync job
type FullSyncResult struct {
	SyncedCount int       `json:"syncedCount"`
	FailedCount int       `json:"failedCount"`
	Pages       int       `json:"pages"`
	CompletedAt time.Time `json:"completedAt"`
}

// IncrementalSyncResult is the result of an incremental_sync job
type IncrementalSyncResult struct {
	UpdatedAtMin string    `json:"updatedAtMin"`
	SyncedCount  int       `json:"syncedCount"`
	FailedCount  int       `json:"failedCount"`
	CompletedAt  time.Time `json:"completedAt"`
}

// fetchProducts loads one page through retry and the circuit breaker.
func (s *SyncService) fetchProducts(ctx context.Context, shopDomain, token string, q shopify.ProductQuery) ([]shopify.ProductPayload, error) {
	return resilience.Retry(ctx, func(ctx context.Context) ([]shopify.ProductPayload, error) {
		return ExecuteWithCircuitBreaker(s, func() ([]shopify.ProductPayload, error) {
			return s.shopify.ListProducts(ctx, shopDomain, token, q)
		})
	}, s.retry)
}

// FullSync pages through every product of the shop by id. Products that fail
// to store are counted and logged; a failed page fetch aborts the sync.
func (s *SyncService) FullSync(ctx context.Context, shopDomain, token string) (*FullSyncResult, error) {
	start := s.now()
	tags := map[string]string{"shopDomain": shopDomain}
	s.metrics.Increment("sync.full.started", tags)
	s.logger.Info("Starting full sync", zap.String("shop", shopDomain))

	result := &FullSyncResult{}
	sinceID := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.fetchProducts(ctx, shopDomain, token, shopify.ProductQuery{Limit: shopify.PageSize, SinceID: sinceID})
		if err != nil {
			s.metrics.Increment("sync.full.error", tags)
			s.logger.Error("Full sync failed", zap.String("shop", shopDomain), zap.Int("synced", result.SyncedCount), zap.Error(err))
			return nil, fmt.Errorf("fetch products for %s: %w", shopDomain, err)
		}
		result.Pages++

		for _, p := range page {
			if err := s.ProcessProductWebhook(ctx, shopDomain, p); err != nil {
				result.FailedCount++
				continue
			}
			result.SyncedCount++
		}

		if len(page) < shopify.PageSize {
			break
		}
		next := lastID(page)
		if next == "" || next == sinceID {
			s.logger.Warn("Full sync stopped: page cursor did not advance", zap.String("shop", shopDomain))
			break
		}
		sinceID = next
	}

	result.CompletedAt = s.now().UTC()
	s.metrics.Increment("sync.full.completed", tags)
	s.metrics.Timing("sync.full.duration", start, tags)
	s.metrics.Track("sync.full.products_count", float64(result.SyncedCount), tags)
	s.logger.Info("Full sync completed",
		zap.String("shop", shopDomain),
		zap.Int("synced", result.SyncedCount),
		zap.Int("failed", result.FailedCount),
		zap.Int("pages", result.Pages),
	)

	s.publish(ctx, shopDomain, events.FullSyncCompleted, map[string]any{
		"syncedCount": result.SyncedCount,
		"failedCount": result.FailedCount,
	})
	return result, nil
}

// IncrementalSync fetches one page of products updated since updatedAtMin.
// An empty page is a successful sync.
func (s *SyncService) IncrementalSync(ctx context.Context, shopDomain, token, updatedAtMin string) (*IncrementalSyncResult, error) {
	s.logger.Info("Starting incremental sync", zap.String("shop", shopDomain), zap.String("updated_at_min", updatedAtMin))

	page, err := s.fetchProducts(ctx, shopDomain, token, shopify.ProductQuery{Limit: shopify.PageSize, UpdatedAtMin: updatedAtMin})
	if err != nil {
		s.metrics.Increment("sync.incremental.error", map[string]string{"shopDomain": shopDomain})
		return nil, fmt.Errorf("fetch updated products for %s: %w", shopDomain, err)
	}

	result := &IncrementalSyncResult{UpdatedAtMin: updatedAtMin}
	if len(page) > 0 {
		batch := s.ProcessBatchedProducts(ctx, shopDomain, page)
		result.SyncedCount = batch.Processed
		result.FailedCount = batch.Failed
	} else {
		s.logger.Info("No products updated", zap.String("shop", shopDomain), zap.String("updated_at_min", updatedAtMin))
	}
	result.CompletedAt = s.now().UTC()

	s.publish(ctx, shopDomain, events.IncrementalSyncCompleted, map[string]any{
		"syncedCount": result.SyncedCount,
		"timestamp":   result.CompletedAt.Format(time.RFC3339),
	})
	return result, nil
}

// ScheduledIncrementalSync queues an incremental sync for every active shop.
// Each shop's window starts where its last queued window ended and only moves
// on once a sync for it has been queued, so a failed run is covered by the next.
func (s *SyncService) ScheduledIncrementalSync(ctx context.Context) error {
	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()

	now := s.now().UTC()
	shops, err := s.repos.Shop.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active shops: %w", err)
	}

	queued, skipped := 0, 0
	for _, shop := range shops {
		since, ok := s.scheduledSince[shop.Domain]
		if !ok {
			since = now.Add(-firstScheduledWindow)
		}

		token, err := s.tokens.Decrypt(shop.AccessToken)
		if err != nil || token == "" {
			s.logger.Warn("Skipping scheduled sync: no usable token", zap.String("shop", shop.Domain), zap.Error(err))
			skipped++
			continue
		}
		if _, err := s.QueueIncrementalSync(shop.Domain, token, since.Format(time.RFC3339)); err != nil {
			s.logger.Error("Failed to queue scheduled incremental sync", zap.String("shop", shop.Domain), zap.Error(err))
			skipped++
			continue
		}
		s.scheduledSince[shop.Domain] = now
		queued++
	}

	s.logger.Info("Scheduled incremental syncs queued", zap.Int("shops", queued), zap.Int("skipped", skipped))
	if skipped > 0 {
		return fmt.Errorf("scheduled incremental sync skipped %d of %d shops", skipped, len(shops))
	}
	return nil
}
