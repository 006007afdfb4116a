// Package memory keeps repositories in process memory. It backs local
// development when no database is configured, and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/repository"
	"github.com/jafarshop/shopsync/pkg/errors"
)

func NewRepositories() *repository.Repositories {
	return &repository.Repositories{
		Product:   NewProductRepository(),
		Inventory: NewInventoryRepository(),
		SyncLog:   NewSyncLogRepository(),
		Shop:      NewShopRepository(),
	}
}

type productRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	variants map[string]domain.ProductVariant
}

func NewProductRepository() *productRepository {
	return &productRepository{
		products: make(map[string]domain.Product),
		variants: make(map[string]domain.ProductVariant),
	}
}

func (r *productRepository) Save(_ context.Context, p *domain.Product) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = copyProduct(*p)
	return nil
}

func (r *productRepository) SaveVariant(_ context.Context, v *domain.ProductVariant) error {
	now := time.Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[v.ID] = *v
	return nil
}

func (r *productRepository) Get(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "product", ID: id}
	}
	cp := copyProduct(p)
	return &cp, nil
}

func (r *productRepository) ListVariants(_ context.Context, productID string) ([]*domain.ProductVariant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.ProductVariant
	for _, v := range r.variants {
		if v.ProductID == productID {
			cp := v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *productRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.products, id)
	for vid, v := range r.variants {
		if v.ProductID == id {
			delete(r.variants, vid)
		}
	}
	return nil
}

func (r *productRepository) ListByShop(_ context.Context, shopDomain string, limit, offset int) ([]*domain.Product, error) {
	r.mu.RLock()
	var all []*domain.Product
	for _, p := range r.products {
		if p.ShopDomain == shopDomain {
			cp := copyProduct(p)
			all = append(all, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *productRepository) CountByShop(_ context.Context, shopDomain string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, p := range r.products {
		if p.ShopDomain == shopDomain {
			n++
		}
	}
	return n, nil
}

func copyProduct(p domain.Product) domain.Product {
	p.Tags = append([]string(nil), p.Tags...)
	p.Images = append([]domain.ProductImage(nil), p.Images...)
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		p.PublishedAt = &t
	}
	return p
}

type inventoryRepository struct {
	mu     sync.RWMutex
	levels map[string]domain.InventoryLevel
}

func NewInventoryRepository() *inventoryRepository {
	return &inventoryRepository{levels: make(map[string]domain.InventoryLevel)}
}

func (r *inventoryRepository) Save(_ context.Context, l *domain.InventoryLevel) error {
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now()
	}
	r.mu.Lock()
	r.levels[l.ID] = *l
	r.mu.Unlock()
	return nil
}

func (r *inventoryRepository) Get(_ context.Context, id string) (*domain.InventoryLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.levels[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "inventory_level", ID: id}
	}
	return &l, nil
}

type syncLogRepository struct {
	mu   sync.RWMutex
	logs map[string]domain.SyncLog
}

func NewSyncLogRepository() *syncLogRepository {
	return &syncLogRepository{logs: make(map[string]domain.SyncLog)}
}

func (r *syncLogRepository) Save(_ context.Context, l *domain.SyncLog) error {
	now := time.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	cp := *l
	if l.ErrorMessage != nil {
		msg := *l.ErrorMessage
		cp.ErrorMessage = &msg
	}

	r.mu.Lock()
	r.logs[l.ID] = cp
	r.mu.Unlock()
	return nil
}

func (r *syncLogRepository) ListByShop(_ context.Context, shopDomain string, limit int) ([]*domain.SyncLog, error) {
	r.mu.RLock()
	var out []*domain.SyncLog
	for _, l := range r.logs {
		if l.ShopDomain == shopDomain {
			cp := l
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type shopRepository struct {
	mu    sync.RWMutex
	shops map[string]domain.Shop
}

func NewShopRepository() *shopRepository {
	return &shopRepository{shops: make(map[string]domain.Shop)}
}

func (r *shopRepository) GetByDomain(_ context.Context, shopDomain string) (*domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.shops[shopDomain]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "shop", ID: shopDomain}
	}
	return &s, nil
}

func (r *shopRepository) Upsert(_ context.Context, s *domain.Shop) error {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.shops[s.Domain]; ok && s.InstalledAt.IsZero() {
		s.InstalledAt = existing.InstalledAt
	}
	if s.InstalledAt.IsZero() {
		s.InstalledAt = now
	}
	s.UpdatedAt = now
	r.shops[s.Domain] = *s
	return nil
}

func (r *shopRepository) Deactivate(_ context.Context, shopDomain string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.shops[shopDomain]
	if !ok {
		return false, nil
	}
	s.IsActive = false
	s.UpdatedAt = time.Now()
	r.shops[shopDomain] = s
	return true, nil
}

func (r *shopRepository) ListActive(_ context.Context) ([]*domain.Shop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Shop
	for _, s := range r.shops {
		if s.IsActive {
			cp := s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}
