package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/cache"
	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/events"
	"github.com/jafarshop/shopsync/internal/jobs"
	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/repository"
	"github.com/jafarshop/shopsync/internal/resilience"
	"github.com/jafarshop/shopsync/internal/security"
	"github.com/jafarshop/shopsync/internal/shopify"
	"github.com/jafarshop/shopsync/pkg/errors"
)

// Queue priorities; higher runs first.
const (
	PriorityFullSync        = 0
	PriorityIncrementalSync = 0
	PriorityProductSync     = 1
	PriorityBulkSync        = 1
	PriorityInventorySync   = 2
)

// productCacheTTL bounds how stale GetCachedProduct can be.
const productCacheTTL = time.Minute

// ProductSource lists products from the upstream store.
type ProductSource interface {
	ListProducts(ctx context.Context, shop, token string, q shopify.ProductQuery) ([]shopify.ProductPayload, error)
}

// Dependencies are the collaborators of SyncService. Events, Errors, Metrics
// and Cache get no-op or in-memory defaults when nil.
type Dependencies struct {
	Repos   *repository.Repositories
	Shopify ProductSource
	Queue   *jobs.Queue
	Tracker *jobs.Tracker
	Breaker *resilience.Breaker
	Cache   cache.Store
	Events  events.Publisher
	Errors  *monitoring.ErrorTracker
	Metrics *monitoring.Collector
	Tokens  *security.TokenCipher
	Logger  *zap.Logger

	// FallbackToken is used for webhook work when a shop has no stored token.
	FallbackToken string
	// Retry wraps every upstream page fetch.
	Retry resilience.RetryOptions
	// BatchPause is the wait between bulk batches.
	BatchPause time.Duration
}

// SyncService mirrors Shopify products and inventory into the local store.
type SyncService struct {
	repos      *repository.Repositories
	shopify    ProductSource
	queue      *jobs.Queue
	tracker    *jobs.Tracker
	breaker    *resilience.Breaker
	cache      cache.Store
	events     events.Publisher
	errors     *monitoring.ErrorTracker
	metrics    *monitoring.Collector
	tokens     *security.TokenCipher
	logger     *zap.Logger
	retry      resilience.RetryOptions
	batchPause time.Duration
	fallback   string
	now        func() time.Time

	scheduleMu     sync.Mutex
	scheduledSince map[string]time.Time // per shop, start of the next scheduled window
}

// NewSyncService builds the service and registers its workers on the queue.
func NewSyncService(d Dependencies) *SyncService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SyncService{
		repos:      d.Repos,
		shopify:    d.Shopify,
		queue:      d.Queue,
		tracker:    d.Tracker,
		breaker:    d.Breaker,
		cache:      d.Cache,
		events:     d.Events,
		errors:     d.Errors,
		metrics:    d.Metrics,
		tokens:     d.Tokens,
		logger:     logger,
		retry:      d.Retry,
		batchPause: d.BatchPause,
		fallback:   d.FallbackToken,
		now:        time.Now,

		scheduledSince: make(map[string]time.Time),
	}
	if s.breaker == nil {
		s.breaker = resilience.NewBreaker(logger)
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryStore()
	}
	if s.events == nil {
		s.events = events.NewLogPublisher(logger)
	}
	if s.errors == nil {
		s.errors = monitoring.NewErrorTracker(logger, nil)
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewCollector()
	}
	if s.tokens == nil {
		s.tokens = security.NewTokenCipher("")
	}
	if s.retry.Retryable == nil {
		s.retry.Retryable = retryableUpstream
	}
	if s.retry.OnRetry == nil {
		s.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			logger.Warn("Retrying upstream request", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		}
	}

	s.registerWorkers()
	return s
}

// retryableUpstream retries transient upstream failures and network errors,
// but never an open circuit or a cancelled context.
func retryableUpstream(err error) bool {
	if stderrors.Is(err, resilience.ErrCircuitOpen) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var upstream *errors.ErrUpstream
	if stderrors.As(err, &upstream) {
		return upstream.Temporary()
	}
	return true
}

// Breaker exposes the upstream circuit breaker for health reporting.
func (s *SyncService) Breaker() *resilience.Breaker { return s.breaker }

func (s *SyncService) Tracker() *jobs.Tracker { return s.tracker }

// QueueLength is the number of jobs waiting to run.
func (s *SyncService) QueueLength() int { return s.queue.Len() }

// ExecuteWithCircuitBreaker runs op through the upstream breaker.
func ExecuteWithCircuitBreaker[T any](s *SyncService, op func() (T, error)) (T, error) {
	return resilience.Execute(s.breaker, op)
}

// Job payloads carried on the queue
type (
	productJob struct {
		ShopDomain  string
		AccessToken string
		Product     shopify.ProductPayload
	}
	inventoryJob struct {
		ShopDomain  string
		AccessToken string
		Level       shopify.InventoryLevelPayload
	}
	fullSyncJob struct {
		ShopDomain  string
		AccessToken string
	}
	incrementalSyncJob struct {
		ShopDomain   string
		AccessToken  string
		UpdatedAtMin string
	}
	bulkSyncJob struct {
		ShopDomain  string
		AccessToken string
		Products    []shopify.ProductPayload
		RequestedAt time.Time
	}
)

func (s *SyncService) registerWorkers() {
	s.queue.RegisterWorker(domain.JobTypeProductSync, func(ctx context.Context, job *jobs.Job) (any, error) {
		data, ok := job.Data.(productJob)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for %s", job.Data, job.Type)
		}
		if err := s.ProcessProductWebhook(ctx, data.ShopDomain, data.Product); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "productId": data.Product.ID.String()}, nil
	})

	s.queue.RegisterWorker(domain.JobTypeInventorySync, func(ctx context.Context, job *jobs.Job) (any, error) {
		data, ok := job.Data.(inventoryJob)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for %s", job.Data, job.Type)
		}
		if err := s.ProcessInventoryWebhook(ctx, data.ShopDomain, data.Level); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "inventoryItemId": data.Level.InventoryItemID.String()}, nil
	})

	s.queue.RegisterWorker(domain.JobTypeFullSync, func(ctx context.Context, job *jobs.Job) (any, error) {
		data, ok := job.Data.(fullSyncJob)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for %s", job.Data, job.Type)
		}
		return s.FullSync(ctx, data.ShopDomain, data.AccessToken)
	})

	s.queue.RegisterWorker(domain.JobTypeIncrementalSync, func(ctx context.Context, job *jobs.Job) (any, error) {
		data, ok := job.Data.(incrementalSyncJob)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for %s", job.Data, job.Type)
		}
		return s.IncrementalSync(ctx, data.ShopDomain, data.AccessToken, data.UpdatedAtMin)
	})

	s.queue.RegisterWorker(domain.JobTypeBulkSync, s.runBulkSync)
}

func (s *SyncService) QueueProductSync(shopDomain, accessToken string, product shopify.ProductPayload) (string, error) {
	return s.queue.Add(domain.JobTypeProductSync, shopDomain,
		productJob{ShopDomain: shopDomain, AccessToken: accessToken, Product: product},
		jobs.Options{Priority: PriorityProductSync, Metadata: map[string]any{"productId": product.ID.String()}},
	)
}

// QueueInventorySync runs ahead of product syncs; stock correctness is more urgent.
func (s *SyncService) QueueInventorySync(shopDomain, accessToken string, level shopify.InventoryLevelPayload) (string, error) {
	return s.queue.Add(domain.JobTypeInventorySync, shopDomain,
		inventoryJob{ShopDomain: shopDomain, AccessToken: accessToken, Level: level},
		jobs.Options{Priority: PriorityInventorySync, Metadata: map[string]any{"inventoryItemId": level.InventoryItemID.String()}},
	)
}

func (s *SyncService) QueueFullSync(shopDomain, accessToken string) (string, error) {
	return s.queue.Add(domain.JobTypeFullSync, shopDomain,
		fullSyncJob{ShopDomain: shopDomain, AccessToken: accessToken},
		jobs.Options{Priority: PriorityFullSync, Metadata: map[string]any{"requestedAt": s.now().UTC().Format(time.RFC3339)}},
	)
}

func (s *SyncService) QueueIncrementalSync(shopDomain, accessToken, updatedAtMin string) (string, error) {
	return s.queue.Add(domain.JobTypeIncrementalSync, shopDomain,
		incrementalSyncJob{ShopDomain: shopDomain, AccessToken: accessToken, UpdatedAtMin: updatedAtMin},
		jobs.Options{Priority: PriorityIncrementalSync, Metadata: map[string]any{"updatedAtMin": updatedAtMin}},
	)
}

// ProcessProductWebhook stores a product and its variants. Failures are
// recorded on the sync log and the error tracker, then returned so the
// queue can retry.
func (s *SyncService) ProcessProductWebhook(ctx context.Context, shopDomain string, payload shopify.ProductPayload) error {
	start := s.now()
	tags := map[string]string{"shopDomain": shopDomain}
	s.metrics.Increment("webhook.product.received", tags)

	shopifyID := payload.ID.String()
	log, err := s.startSyncLog(ctx, shopDomain, domain.SyncEventProductUpdate, shopifyID)
	if err != nil {
		return s.trackFailure(ctx, "product webhook", shopDomain, map[string]any{"productId": shopifyID}, err)
	}

	product, err := s.saveProduct(ctx, shopDomain, payload)
	if err != nil {
		s.finishSyncLog(ctx, log, err)
		s.metrics.Increment("webhook.product.error", tags)
		return s.trackFailure(ctx, "product webhook", shopDomain, map[string]any{"productId": shopifyID}, err)
	}
	s.finishSyncLog(ctx, log, nil)

	s.InvalidateCache(ctx, shopDomain, shopifyID)
	s.publish(ctx, shopDomain, events.ProductUpdated, product)

	s.metrics.Increment("webhook.product.success", tags)
	s.metrics.Timing("webhook.product.duration", start, tags)
	return nil
}

func (s *SyncService) saveProduct(ctx context.Context, shopDomain string, payload shopify.ProductPayload) (*domain.Product, error) {
	if payload.ID == "" {
		return nil, &errors.ErrValidation{Message: "product id is required"}
	}

	now := s.now().UTC()
	product := transformProduct(payload, shopDomain, now)
	if err := s.repos.Product.Save(ctx, product); err != nil {
		return nil, fmt.Errorf("save product %s: %w", product.ID, err)
	}
	for _, v := range payload.Variants {
		variant := transformVariant(v, product.ID, now)
		if err := s.repos.Product.SaveVariant(ctx, variant); err != nil {
			return nil, fmt.Errorf("save variant %s: %w", variant.ID, err)
		}
	}
	return product, nil
}

func (s *SyncService) ProcessInventoryWebhook(ctx context.Context, shopDomain string, payload shopify.InventoryLevelPayload) error {
	tags := map[string]string{"shopDomain": shopDomain}
	s.metrics.Increment("webhook.inventory.received", tags)

	itemID := payload.InventoryItemID.String()
	log, err := s.startSyncLog(ctx, shopDomain, domain.SyncEventInventoryUpdate, itemID)
	if err != nil {
		return s.trackFailure(ctx, "inventory webhook", shopDomain, map[string]any{"inventoryItemId": itemID}, err)
	}

	level := transformInventory(payload, shopDomain, s.now().UTC())
	err = s.saveInventory(ctx, payload, level)
	s.finishSyncLog(ctx, log, err)
	if err != nil {
		s.metrics.Increment("webhook.inventory.error", tags)
		return s.trackFailure(ctx, "inventory webhook", shopDomain, map[string]any{"inventoryItemId": itemID}, err)
	}

	s.publish(ctx, shopDomain, events.InventoryUpdated, level)
	s.metrics.Increment("webhook.inventory.success", tags)
	return nil
}

func (s *SyncService) saveInventory(ctx context.Context, payload shopify.InventoryLevelPayload, level *domain.InventoryLevel) error {
	if payload.InventoryItemID == "" || payload.LocationID == "" {
		return &errors.ErrValidation{Message: "inventory_item_id and location_id are required"}
	}
	if err := s.repos.Inventory.Save(ctx, level); err != nil {
		return fmt.Errorf("save inventory level %s: %w", level.ID, err)
	}
	return nil
}

// ProcessProductDeleteWebhook removes a product and its variants.
func (s *SyncService) ProcessProductDeleteWebhook(ctx context.Context, shopDomain string, payload shopify.DeletePayload) error {
	shopifyID := payload.ID.String()
	log, err := s.startSyncLog(ctx, shopDomain, domain.SyncEventProductDelete, shopifyID)
	if err != nil {
		return s.trackFailure(ctx, "product delete webhook", shopDomain, map[string]any{"productId": shopifyID}, err)
	}

	if shopifyID == "" {
		err = &errors.ErrValidation{Message: "product id is required"}
	} else {
		err = s.repos.Product.Delete(ctx, ProductID(shopDomain, shopifyID))
	}
	s.finishSyncLog(ctx, log, err)
	if err != nil {
		return s.trackFailure(ctx, "product delete webhook", shopDomain, map[string]any{"productId": shopifyID}, err)
	}

	s.InvalidateCache(ctx, shopDomain, shopifyID)
	s.publish(ctx, shopDomain, events.ProductDeleted, map[string]any{"id": shopifyID})
	s.metrics.Increment("webhook.product_delete.success", map[string]string{"shopDomain": shopDomain})
	return nil
}

func (s *SyncService) trackFailure(ctx context.Context, what, shopDomain string, fields map[string]any, err error) error {
	wrapped := fmt.Errorf("failed to process %s for %s: %w", what, shopDomain, err)
	if fields == nil {
		fields = map[string]any{}
	}
	fields["shopDomain"] = shopDomain
	s.errors.Track(ctx, wrapped, monitoring.SeverityHigh, fields)
	return wrapped
}

func (s *SyncService) startSyncLog(ctx context.Context, shopDomain string, eventType domain.SyncEventType, shopifyID string) (*domain.SyncLog, error) {
	now := s.now().UTC()
	log := &domain.SyncLog{
		ID:         uuid.NewString(),
		ShopDomain: shopDomain,
		EventType:  eventType,
		ShopifyID:  shopifyID,
		Status:     domain.SyncStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repos.SyncLog.Save(ctx, log); err != nil {
		return nil, fmt.Errorf("save sync log: %w", err)
	}
	return log, nil
}

// finishSyncLog moves a pending log to success, or to error with cause.
func (s *SyncService) finishSyncLog(ctx context.Context, log *domain.SyncLog, cause error) {
	log.Status = domain.SyncStatusSuccess
	log.ErrorMessage = nil
	if cause != nil {
		msg := cause.Error()
		log.Status = domain.SyncStatusError
		log.ErrorMessage = &msg
	}
	if err := s.repos.SyncLog.Save(ctx, log); err != nil {
		s.logger.Error("Failed to update sync log",
			zap.String("sync_log_id", log.ID),
			zap.String("status", string(log.Status)),
			zap.Error(err),
		)
	}
}

func (s *SyncService) publish(ctx context.Context, shopDomain, eventType string, data any) {
	err := s.events.Publish(ctx, events.Event{
		ShopDomain: shopDomain,
		Type:       eventType,
		Data:       data,
		Timestamp:  s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish sync event",
			zap.String("shop", shopDomain),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

func productCacheKey(shopDomain, shopifyID string) string {
	return shopDomain + "-product-" + shopifyID
}

// GetCachedProduct reads a product through the short-lived product cache.
func (s *SyncService) GetCachedProduct(ctx context.Context, shopDomain, shopifyID string) (*domain.Product, error) {
	key := productCacheKey(shopDomain, shopifyID)

	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var p domain.Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
	}

	product, err := s.repos.Product.Get(ctx, ProductID(shopDomain, shopifyID))
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(product); err == nil {
		if err := s.cache.Set(ctx, key, raw, productCacheTTL); err != nil {
			s.logger.Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return product, nil
}

func (s *SyncService) InvalidateCache(ctx context.Context, shopDomain, shopifyID string) {
	key := productCacheKey(shopDomain, shopifyID)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}
