package postgres

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/domain"
)

type syncLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(db *sql.DB, logger *zap.Logger) *syncLogRepository {
	return &syncLogRepository{
		db:     db,
		logger: logger,
	}
}

func (r *syncLogRepository) Save(ctx context.Context, l *domain.SyncLog) error {
	query := `
		INSERT INTO sync_logs (id, shop_domain, event_type, shopify_id, status, error_message, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	var errMsg sql.NullString
	if l.ErrorMessage != nil {
		errMsg = sql.NullString{String: *l.ErrorMessage, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		l.ID,
		l.ShopDomain,
		string(l.EventType),
		l.ShopifyID,
		string(l.Status),
		errMsg,
		l.RetryCount,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save sync log", zap.String("sync_log_id", l.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *syncLogRepository) ListByShop(ctx context.Context, shopDomain string, limit int) ([]*domain.SyncLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, shop_domain, event_type, shopify_id, status, error_message, retry_count, created_at, updated_at
		FROM sync_logs
		WHERE shop_domain = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, shopDomain, limit)
	if err != nil {
		r.logger.Error("Failed to list sync logs", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.SyncLog
	for rows.Next() {
		var (
			l         domain.SyncLog
			eventType string
			status    string
			errMsg    sql.NullString
		)
		if err := rows.Scan(
			&l.ID,
			&l.ShopDomain,
			&eventType,
			&l.ShopifyID,
			&status,
			&errMsg,
			&l.RetryCount,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		l.EventType = domain.SyncEventType(eventType)
		l.Status = domain.SyncStatus(status)
		if errMsg.Valid {
			msg := errMsg.String
			l.ErrorMessage = &msg
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
