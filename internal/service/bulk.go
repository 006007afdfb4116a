package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/events"
	"github.com/jafarshop/shopsync/internal/jobs"
	"github.com/jafarshop/shopsync/internal/shopify"
)

const (
	// ChunkSize is how many products are stored concurrently.
	ChunkSize = 10
	// BulkBatchSize is how many products a bulk job handles between progress updates.
	BulkBatchSize = 50
	// DefaultBatchPause is the wait between bulk batches.
	DefaultBatchPause = 100 * time.Millisecond
)

// BatchFailure is one product that could not be stored
type BatchFailure struct {
	ProductID string `json:"productId"`
	Error     string `json:"error"`
}

// BatchResult summarises a ProcessBatchedProducts call
type BatchResult struct {
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Chunks    int            `json:"chunks"`
	Failures  []BatchFailure `json:"failures,omitempty"`
}

// BulkPlan is what QueueBulkSync tells the caller about the queued job
type BulkPlan struct {
	JobID             string `json:"jobId"`
	ProductCount      int    `json:"productCount"`
	BatchCount        int    `json:"batchCount"`
	EstimatedDuration string `json:"estimatedDuration"`
}

// BulkSyncResult is the result of a bulk_sync job
type BulkSyncResult struct {
	ProcessedProducts int       `json:"processedProducts"`
	FailedProducts    int       `json:"failedProducts"`
	TotalBatches      int       `json:"totalBatches"`
	CompletedAt       time.Time `json:"completedAt"`
}

func chunkArray[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// ProcessBatchedProducts stores products in chunks of ChunkSize. Chunks run
// one after another, the products inside a chunk run concurrently. A failed
// product leaves an error sync log and never stops the batch.
func (s *SyncService) ProcessBatchedProducts(ctx context.Context, shopDomain string, products []shopify.ProductPayload) BatchResult {
	chunks := chunkArray(products, ChunkSize)
	result := BatchResult{Chunks: len(chunks)}

	var mu sync.Mutex
	for i, chunk := range chunks {
		var g errgroup.Group
		g.SetLimit(ChunkSize)
		for _, p := range chunk {
			p := p
			g.Go(func() error {
				err := s.ProcessProductWebhook(ctx, shopDomain, p)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed++
					result.Failures = append(result.Failures, BatchFailure{ProductID: p.ID.String(), Error: err.Error()})
					return nil
				}
				result.Processed++
				return nil
			})
		}
		_ = g.Wait()

		s.logger.Debug("Processed product chunk",
			zap.String("shop", shopDomain),
			zap.Int("chunk", i+1),
			zap.Int("chunks", len(chunks)),
		)
	}

	if result.Failed > 0 {
		s.logger.Warn("Batch finished with failures",
			zap.String("shop", shopDomain),
			zap.Int("processed", result.Processed),
			zap.Int("failed", result.Failed),
		)
	}
	return result
}

// estimateBulkDuration gives a human range at 0.5 to 1.5 minutes per batch.
func estimateBulkDuration(batches int) string {
	low := int(math.Ceil(float64(batches) * 0.5))
	high := int(math.Ceil(float64(batches) * 1.5))
	return fmt.Sprintf("%d-%d minutes", low, high)
}

// QueueBulkSync queues a caller supplied product list. Bulk jobs run once;
// a retry would store every product again.
func (s *SyncService) QueueBulkSync(shopDomain, accessToken string, products []shopify.ProductPayload, metadata map[string]any) (*BulkPlan, error) {
	batches := (len(products) + BulkBatchSize - 1) / BulkBatchSize

	meta := map[string]any{
		"productCount": len(products),
		"batchCount":   batches,
	}
	for k, v := range metadata {
		meta[k] = v
	}

	id, err := s.queue.Add(domain.JobTypeBulkSync, shopDomain,
		bulkSyncJob{ShopDomain: shopDomain, AccessToken: accessToken, Products: products, RequestedAt: s.now().UTC()},
		jobs.Options{Priority: PriorityBulkSync, MaxAttempts: 1, Metadata: meta},
	)
	if err != nil {
		return nil, err
	}

	s.metrics.Increment("sync.bulk.queued", map[string]string{"shopDomain": shopDomain})
	return &BulkPlan{
		JobID:             id,
		ProductCount:      len(products),
		BatchCount:        batches,
		EstimatedDuration: estimateBulkDuration(batches),
	}, nil
}

func (s *SyncService) runBulkSync(ctx context.Context, job *jobs.Job) (any, error) {
	data, ok := job.Data.(bulkSyncJob)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T for %s", job.Data, job.Type)
	}

	start := s.now()
	tags := map[string]string{"shopDomain": data.ShopDomain}
	s.metrics.Increment("sync.bulk.started", tags)

	batches := chunkArray(data.Products, BulkBatchSize)
	result := &BulkSyncResult{TotalBatches: len(batches)}
	s.logger.Info("Starting bulk sync",
		zap.String("job_id", job.ID),
		zap.String("shop", data.ShopDomain),
		zap.Int("products", len(data.Products)),
		zap.Int("batches", len(batches)),
	)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			s.metrics.Increment("sync.bulk.error", tags)
			return nil, fmt.Errorf("bulk sync interrupted after %d of %d batches: %w", i, len(batches), err)
		}

		r := s.ProcessBatchedProducts(ctx, data.ShopDomain, batch)
		result.ProcessedProducts += r.Processed
		result.FailedProducts += r.Failed
		s.tracker.UpdateProgress(job.ID, i+1, len(batches))

		if i < len(batches)-1 && s.batchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.batchPause):
			}
		}
	}

	result.CompletedAt = s.now().UTC()
	s.metrics.Increment("sync.bulk.completed", tags)
	s.metrics.Timing("sync.bulk.duration", start, tags)
	s.metrics.Track("sync.bulk.products_count", float64(result.ProcessedProducts), tags)
	s.logger.Info("Bulk sync completed",
		zap.String("job_id", job.ID),
		zap.String("shop", data.ShopDomain),
		zap.Int("processed", result.ProcessedProducts),
		zap.Int("failed", result.FailedProducts),
	)

	s.publish(ctx, data.ShopDomain, events.BulkSyncCompleted, result)
	return result, nil
}
