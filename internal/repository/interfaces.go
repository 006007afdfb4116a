package repository

import (
	"context"

	"github.com/jafarshop/shopsync/internal/domain"
)

// ProductRepository defines product and variant data access methods
type ProductRepository interface {
	Save(ctx context.Context, product *domain.Product) error
	SaveVariant(ctx context.Context, variant *domain.ProductVariant) error
	Get(ctx context.Context, id string) (*domain.Product, error)
	ListVariants(ctx context.Context, productID string) ([]*domain.ProductVariant, error)
	// Delete removes a product and its variants. Deleting a missing product is not an error.
	Delete(ctx context.Context, id string) error
	ListByShop(ctx context.Context, shopDomain string, limit, offset int) ([]*domain.Product, error)
	CountByShop(ctx context.Context, shopDomain string) (int, error)
}

// InventoryRepository defines inventory level data access methods
type InventoryRepository interface {
	Save(ctx context.Context, level *domain.InventoryLevel) error
	Get(ctx context.Context, id string) (*domain.InventoryLevel, error)
}

// SyncLogRepository defines sync log data access methods
type SyncLogRepository interface {
	// Save inserts the log or replaces the row with the same id.
	Save(ctx context.Context, log *domain.SyncLog) error
	// ListByShop returns the newest logs first.
	ListByShop(ctx context.Context, shopDomain string, limit int) ([]*domain.SyncLog, error)
}

// ShopRepository defines installed shop data access methods
type ShopRepository interface {
	GetByDomain(ctx context.Context, shopDomain string) (*domain.Shop, error)
	Upsert(ctx context.Context, shop *domain.Shop) error
	// Deactivate reports whether a shop with that domain existed.
	Deactivate(ctx context.Context, shopDomain string) (bool, error)
	ListActive(ctx context.Context) ([]*domain.Shop, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Product   ProductRepository
	Inventory InventoryRepository
	SyncLog   SyncLogRepository
	Shop      ShopRepository
}
