package postgres

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/pkg/errors"
)

type shopRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewShopRepository creates a new shop repository
func NewShopRepository(db *sql.DB, logger *zap.Logger) *shopRepository {
	return &shopRepository{
		db:     db,
		logger: logger,
	}
}

const shopColumns = `domain, access_token, scope, is_active, installed_at, updated_at`

func (r *shopRepository) GetByDomain(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE domain = $1`

	s, err := scanShop(r.db.QueryRowContext(ctx, query, shopDomain))
	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "shop", ID: shopDomain}
	}
	if err != nil {
		r.logger.Error("Failed to get shop", zap.String("shop", shopDomain), zap.Error(err))
		return nil, err
	}
	return s, nil
}

// Upsert keeps installed_at from the first install.
func (r *shopRepository) Upsert(ctx context.Context, s *domain.Shop) error {
	query := `
		INSERT INTO shops (` + shopColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			scope = EXCLUDED.scope,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if s.InstalledAt.IsZero() {
		s.InstalledAt = now
	}
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		s.Domain,
		s.AccessToken,
		s.Scope,
		s.IsActive,
		s.InstalledAt,
		s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert shop", zap.String("shop", s.Domain), zap.Error(err))
		return err
	}
	return nil
}

func (r *shopRepository) Deactivate(ctx context.Context, shopDomain string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shops SET is_active = $1, updated_at = $2 WHERE domain = $3`,
		false, time.Now().UTC(), shopDomain,
	)
	if err != nil {
		r.logger.Error("Failed to deactivate shop", zap.String("shop", shopDomain), zap.Error(err))
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *shopRepository) ListActive(ctx context.Context) ([]*domain.Shop, error) {
	query := `SELECT ` + shopColumns + ` FROM shops WHERE is_active = $1 ORDER BY domain`

	rows, err := r.db.QueryContext(ctx, query, true)
	if err != nil {
		r.logger.Error("Failed to list active shops", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var shops []*domain.Shop
	for rows.Next() {
		s, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		shops = append(shops, s)
	}
	return shops, rows.Err()
}

func scanShop(row scanner) (*domain.Shop, error) {
	var s domain.Shop
	if err := row.Scan(
		&s.Domain,
		&s.AccessToken,
		&s.Scope,
		&s.IsActive,
		&s.InstalledAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
