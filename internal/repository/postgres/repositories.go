package postgres

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/repository"
)

// NewRepositories creates a new set of repositories
func NewRepositories(db *sql.DB, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Product:   NewProductRepository(db, logger),
		Inventory: NewInventoryRepository(db, logger),
		SyncLog:   NewSyncLogRepository(db, logger),
		Shop:      NewShopRepository(db, logger),
	}
}
