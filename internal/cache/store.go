package cache

import (
	"context"
	"time"
)

// Store is a byte cache with per-key expiry. A ttl <= 0 never expires.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
