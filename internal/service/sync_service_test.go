package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/events"
	"github.com/jafarshop/shopsync/internal/jobs"
	"github.com/jafarshop/shopsync/internal/repository"
	"github.com/jafarshop/shopsync/internal/repository/memory"
	"github.com/jafarshop/shopsync/internal/resilience"
	"github.com/jafarshop/shopsync/internal/shopify"
	"github.com/jafarshop/shopsync/pkg/errors"
)

const testShop = "demo.myshopify.com"

type fakeSource struct {
	mu      sync.Mutex
	pages   map[string][]shopify.ProductPayload // keyed by since_id
	err     error
	queries []shopify.ProductQuery
}

func (f *fakeSource) ListProducts(_ context.Context, _, _ string, q shopify.ProductQuery) ([]shopify.ProductPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[q.SinceID], nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	svc     *SyncService
	queue   *jobs.Queue
	tracker *jobs.Tracker
	repos   *repository.Repositories
	source  *fakeSource
	events  *capturePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	tracker := jobs.NewTracker(logger)
	queue := jobs.NewQueue(tracker, logger, jobs.DefaultMaxAttempts)
	repos := memory.NewRepositories()
	source := &fakeSource{pages: map[string][]shopify.ProductPayload{}}
	pub := &capturePublisher{}

	svc := NewSyncService(Dependencies{
		Repos:         repos,
		Shopify:       source,
		Queue:         queue,
		Tracker:       tracker,
		Events:        pub,
		Logger:        logger,
		FallbackToken: "shpat_fallback_token",
		Retry: resilience.RetryOptions{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		},
	})
	return &testEnv{svc: svc, queue: queue, tracker: tracker, repos: repos, source: source, events: pub}
}

func drain(q *jobs.Queue) {
	for q.ProcessNext(context.Background()) {
	}
}

func product(id int) shopify.ProductPayload {
	return shopify.ProductPayload{
		ID:    shopify.ID(strconv.Itoa(id)),
		Title: fmt.Sprintf("Product %d", id),
		Variants: []shopify.VariantPayload{{
			ID:    shopify.ID(strconv.Itoa(id * 100)),
			Price: decimal.RequireFromString("19.99"),
		}},
	}
}

func products(from, to int) []shopify.ProductPayload {
	var out []shopify.ProductPayload
	for i := from; i <= to; i++ {
		out = append(out, product(i))
	}
	return out
}

func logsByStatus(t *testing.T, env *testEnv) map[domain.SyncStatus]int {
	t.Helper()
	logs, err := env.repos.SyncLog.ListByShop(context.Background(), testShop, 1000)
	require.NoError(t, err)
	counts := map[domain.SyncStatus]int{}
	for _, l := range logs {
		counts[l.Status]++
	}
	return counts
}

func TestChunkArray(t *testing.T) {
	chunks := chunkArray([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 3)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}, {10}}, chunks)
	assert.Empty(t, chunkArray([]int{}, 3))
}

func TestProcessProductWebhookStoresProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.ProcessProductWebhook(ctx, testShop, product(42))
	require.NoError(t, err)

	stored, err := env.repos.Product.Get(ctx, ProductID(testShop, "42"))
	require.NoError(t, err)
	assert.Equal(t, "Product 42", stored.Title)
	assert.Equal(t, "active", stored.Status)

	variants, err := env.repos.Product.ListVariants(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "variant-4200", variants[0].ID)
	assert.True(t, decimal.RequireFromString("19.99").Equal(variants[0].Price))
	assert.Equal(t, "deny", variants[0].InventoryPolicy)

	assert.Equal(t, map[domain.SyncStatus]int{domain.SyncStatusSuccess: 1}, logsByStatus(t, env))
	assert.Equal(t, []string{events.ProductUpdated}, env.events.types())
}

func TestProcessInventoryWebhookRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.ProcessInventoryWebhook(ctx, testShop, shopify.InventoryLevelPayload{InventoryItemID: "7"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process inventory webhook for "+testShop)

	logs, err := env.repos.SyncLog.ListByShop(ctx, testShop, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.SyncStatusError, logs[0].Status)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Contains(t, *logs[0].ErrorMessage, "location_id")

	recent := env.svc.errors.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "high", string(recent[0].Severity))
}

func TestProcessInventoryWebhookStoresLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.ProcessInventoryWebhook(ctx, testShop, shopify.InventoryLevelPayload{
		InventoryItemID: "7",
		LocationID:      "9",
		Available:       12,
	})
	require.NoError(t, err)

	level, err := env.repos.Inventory.Get(ctx, "7-9")
	require.NoError(t, err)
	assert.Equal(t, 12, level.Available)
	assert.Equal(t, []string{events.InventoryUpdated}, env.events.types())
}

func TestProcessProductDeleteWebhook(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.svc.ProcessProductWebhook(ctx, testShop, product(5)))

	require.NoError(t, env.svc.ProcessProductDeleteWebhook(ctx, testShop, shopify.DeletePayload{ID: "5"}))

	_, err := env.repos.Product.Get(ctx, ProductID(testShop, "5"))
	var notFound *errors.ErrNotFound
	assert.True(t, stderrors.As(err, &notFound))

	// deleting again is still a success
	require.NoError(t, env.svc.ProcessProductDeleteWebhook(ctx, testShop, shopify.DeletePayload{ID: "5"}))
	assert.Equal(t, 3, logsByStatus(t, env)[domain.SyncStatusSuccess])
}

func TestProcessBatchedProductsIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	list := products(1, 23)
	list[14].ID = "" // the 15th product cannot be stored

	result := env.svc.ProcessBatchedProducts(context.Background(), testShop, list)

	assert.Equal(t, 3, result.Chunks)
	assert.Equal(t, 22, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)

	counts := logsByStatus(t, env)
	assert.Equal(t, 22, counts[domain.SyncStatusSuccess])
	assert.Equal(t, 1, counts[domain.SyncStatusError])

	total, err := env.repos.Product.CountByShop(context.Background(), testShop)
	require.NoError(t, err)
	assert.Equal(t, 22, total)
}

func TestFullSyncPaginatesBySinceID(t *testing.T) {
	env := newTestEnv(t)
	env.source.pages[""] = products(1, shopify.PageSize)
	env.source.pages[strconv.Itoa(shopify.PageSize)] = products(shopify.PageSize+1, shopify.PageSize+3)

	result, err := env.svc.FullSync(context.Background(), testShop, "shpat_test_token")
	require.NoError(t, err)

	assert.Equal(t, shopify.PageSize+3, result.SyncedCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, 2, result.Pages)
	require.Len(t, env.source.queries, 2)
	assert.Equal(t, "", env.source.queries[0].SinceID)
	assert.Equal(t, "250", env.source.queries[1].SinceID)
	assert.Contains(t, env.events.types(), events.FullSyncCompleted)
}

func TestFullSyncJobFailsWhenFetchFails(t *testing.T) {
	env := newTestEnv(t)
	env.source.err = &errors.ErrUpstream{StatusCode: 503, Body: "unavailable"}

	id, err := env.svc.QueueFullSync(testShop, "shpat_test_token")
	require.NoError(t, err)
	drain(env.queue)

	job := env.tracker.GetJob(id)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, jobs.DefaultMaxAttempts, job.Attempts)
	assert.Contains(t, job.Error, "fetch products for "+testShop)
}

func TestFullSyncDoesNotRetryClientErrors(t *testing.T) {
	env := newTestEnv(t)
	env.source.err = &errors.ErrUpstream{StatusCode: 401, Body: "bad token"}

	_, err := env.svc.FullSync(context.Background(), testShop, "shpat_test_token")
	require.Error(t, err)
	assert.Len(t, env.source.queries, 1)
}

func TestIncrementalSyncWithNoChanges(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.IncrementalSync(context.Background(), testShop, "shpat_test_token", "2026-05-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 0, result.SyncedCount)
	require.Len(t, env.source.queries, 1)
	assert.Equal(t, "2026-05-01T00:00:00Z", env.source.queries[0].UpdatedAtMin)
	assert.Equal(t, []string{events.IncrementalSyncCompleted}, env.events.types())
}

func TestBulkSyncJob(t *testing.T) {
	env := newTestEnv(t)

	plan, err := env.svc.QueueBulkSync(testShop, "shpat_test_token", products(1, 120), map[string]any{"source": "test"})
	require.NoError(t, err)
	assert.Equal(t, 120, plan.ProductCount)
	assert.Equal(t, 3, plan.BatchCount)
	assert.Equal(t, "2-5 minutes", plan.EstimatedDuration)

	drain(env.queue)

	job := env.tracker.GetJob(plan.JobID)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.MaxAttempts)
	assert.Equal(t, "test", job.Metadata["source"])
	require.NotNil(t, job.Progress)
	assert.Equal(t, 100, job.Progress.Percentage)

	result, ok := job.Result.(*BulkSyncResult)
	require.True(t, ok)
	assert.Equal(t, 120, result.ProcessedProducts)
	assert.Equal(t, 0, result.FailedProducts)
	assert.Equal(t, 3, result.TotalBatches)
}

func TestQueuedProductSyncRunsWorker(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.svc.QueueProductSync(testShop, "shpat_test_token", product(8))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, env.tracker.GetJob(id).Status)

	drain(env.queue)
	job := env.tracker.GetJob(id)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, map[string]any{"success": true, "productId": "8"}, job.Result)
}

func TestGetCachedProductReadsThrough(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.svc.ProcessProductWebhook(ctx, testShop, product(3)))

	p, err := env.svc.GetCachedProduct(ctx, testShop, "3")
	require.NoError(t, err)
	assert.Equal(t, "Product 3", p.Title)

	// served from cache after the row is gone
	require.NoError(t, env.repos.Product.Delete(ctx, ProductID(testShop, "3")))
	p, err = env.svc.GetCachedProduct(ctx, testShop, "3")
	require.NoError(t, err)
	assert.Equal(t, "Product 3", p.Title)

	env.svc.InvalidateCache(ctx, testShop, "3")
	_, err = env.svc.GetCachedProduct(ctx, testShop, "3")
	assert.Error(t, err)
}

func TestScheduledIncrementalSyncQueuesActiveShops(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return now }

	require.NoError(t, env.repos.Shop.Upsert(ctx, &domain.Shop{Domain: testShop, AccessToken: "shpat_stored_token", IsActive: true}))
	require.NoError(t, env.repos.Shop.Upsert(ctx, &domain.Shop{Domain: "gone.myshopify.com", AccessToken: "shpat_old_token", IsActive: false}))

	require.NoError(t, env.svc.ScheduledIncrementalSync(ctx))
	require.Equal(t, 1, env.queue.Len())

	list := env.tracker.GetJobsByShop(testShop)
	require.Len(t, list, 1)
	assert.Equal(t, "2026-04-30T12:00:00Z", list[0].Metadata["updatedAtMin"])

	now = now.Add(time.Hour)
	require.NoError(t, env.svc.ScheduledIncrementalSync(ctx))
	list = env.tracker.GetJobsByShop(testShop)
	require.Len(t, list, 2)
	var windows []any
	for _, j := range list {
		windows = append(windows, j.Metadata["updatedAtMin"])
	}
	assert.Contains(t, windows, "2026-05-01T12:00:00Z")
}

type flakyShops struct {
	repository.ShopRepository
	err error
}

func (f *flakyShops) ListActive(ctx context.Context) ([]*domain.Shop, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ShopRepository.ListActive(ctx)
}

func TestScheduledIncrementalSyncKeepsWindowAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	env.svc.now = func() time.Time { return now }

	shops := &flakyShops{ShopRepository: env.repos.Shop}
	env.repos.Shop = shops
	require.NoError(t, shops.Upsert(ctx, &domain.Shop{Domain: testShop, AccessToken: "shpat_stored_token", IsActive: true}))

	require.NoError(t, env.svc.ScheduledIncrementalSync(ctx))

	now = t0.Add(time.Hour)
	shops.err = stderrors.New("connection refused")
	assert.Error(t, env.svc.ScheduledIncrementalSync(ctx))
	require.Len(t, env.tracker.GetJobsByShop(testShop), 1)

	// a shop without a token is skipped and keeps its own window
	require.NoError(t, shops.Upsert(ctx, &domain.Shop{Domain: "other.myshopify.com", IsActive: true}))

	now = t0.Add(2 * time.Hour)
	shops.err = nil
	assert.Error(t, env.svc.ScheduledIncrementalSync(ctx))

	list := env.tracker.GetJobsByShop(testShop)
	require.Len(t, list, 2)
	var windows []any
	for _, j := range list {
		windows = append(windows, j.Metadata["updatedAtMin"])
	}
	assert.ElementsMatch(t, []any{"2025-12-31T00:00:00Z", "2026-01-01T00:00:00Z"}, windows)
	assert.Empty(t, env.tracker.GetJobsByShop("other.myshopify.com"))
}

func TestRetryableUpstream(t *testing.T) {
	assert.True(t, retryableUpstream(&errors.ErrUpstream{StatusCode: 500}))
	assert.True(t, retryableUpstream(&errors.ErrUpstream{StatusCode: 429}))
	assert.False(t, retryableUpstream(&errors.ErrUpstream{StatusCode: 404}))
	assert.False(t, retryableUpstream(resilience.ErrCircuitOpen))
	assert.False(t, retryableUpstream(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.True(t, retryableUpstream(stderrors.New("connection reset")))
}

func TestGetCachedProductPrefersCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	raw, err := json.Marshal(&domain.Product{ID: ProductID(testShop, "77"), Title: "Cached"})
	require.NoError(t, err)
	require.NoError(t, env.svc.cache.Set(ctx, productCacheKey(testShop, "77"), raw, time.Minute))

	p, err := env.svc.GetCachedProduct(ctx, testShop, "77")
	require.NoError(t, err)
	assert.Equal(t, "Cached", p.Title)
}
