package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event types published by the sync service
const (
	ProductUpdated           = "product_updated"
	ProductDeleted           = "product_deleted"
	InventoryUpdated         = "inventory_updated"
	FullSyncCompleted        = "full_sync_completed"
	IncrementalSyncCompleted = "incremental_sync_completed"
	BulkSyncCompleted        = "bulk_sync_completed"
	AppUninstalled           = "app_uninstalled"
)

// Event is a real-time notification about a shop's catalog
type Event struct {
	ShopDomain string    `json:"shopDomain"`
	Type       string    `json:"type"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher fans events out to subscribers. Delivery is best effort;
// callers log publish errors and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("Sync event",
		zap.String("shop", e.ShopDomain),
		zap.String("type", e.Type),
		zap.Time("timestamp", e.Timestamp),
		zap.Any("data", e.Data),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
