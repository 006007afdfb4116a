package postgres

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/pkg/errors"
)

type inventoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInventoryRepository creates a new inventory level repository
func NewInventoryRepository(db *sql.DB, logger *zap.Logger) *inventoryRepository {
	return &inventoryRepository{
		db:     db,
		logger: logger,
	}
}

func (r *inventoryRepository) Save(ctx context.Context, l *domain.InventoryLevel) error {
	query := `
		INSERT INTO inventory_levels (id, shop_domain, shopify_inventory_item_id, shopify_location_id, variant_id,
			available, reserved, on_hand, committed, incoming, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			variant_id = EXCLUDED.variant_id,
			available = EXCLUDED.available,
			reserved = EXCLUDED.reserved,
			on_hand = EXCLUDED.on_hand,
			committed = EXCLUDED.committed,
			incoming = EXCLUDED.incoming,
			updated_at = EXCLUDED.updated_at
	`

	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		l.ID,
		l.ShopDomain,
		l.ShopifyInventoryItemID,
		l.ShopifyLocationID,
		l.VariantID,
		l.Available,
		l.Reserved,
		l.OnHand,
		l.Committed,
		l.Incoming,
		l.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save inventory level", zap.String("inventory_id", l.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *inventoryRepository) Get(ctx context.Context, id string) (*domain.InventoryLevel, error) {
	query := `
		SELECT id, shop_domain, shopify_inventory_item_id, shopify_location_id, variant_id,
			available, reserved, on_hand, committed, incoming, updated_at
		FROM inventory_levels
		WHERE id = $1
	`

	var l domain.InventoryLevel
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&l.ID,
		&l.ShopDomain,
		&l.ShopifyInventoryItemID,
		&l.ShopifyLocationID,
		&l.VariantID,
		&l.Available,
		&l.Reserved,
		&l.OnHand,
		&l.Committed,
		&l.Incoming,
		&l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "inventory_level", ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get inventory level", zap.Error(err))
		return nil, err
	}
	return &l, nil
}
