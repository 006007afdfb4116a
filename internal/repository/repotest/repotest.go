// Package repotest holds behaviour tests shared by every repository
// implementation.
package repotest

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/repository"
	"github.com/jafarshop/shopsync/pkg/errors"
)

// Run exercises repos. newRepos must return an empty store on every call.
func Run(t *testing.T, newRepos func(t *testing.T) *repository.Repositories) {
	t.Run("Products", func(t *testing.T) { testProducts(t, newRepos(t)) })
	t.Run("Inventory", func(t *testing.T) { testInventory(t, newRepos(t)) })
	t.Run("SyncLogs", func(t *testing.T) { testSyncLogs(t, newRepos(t)) })
	t.Run("Shops", func(t *testing.T) { testShops(t, newRepos(t)) })
}

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func product(shop, id, title string) *domain.Product {
	published := base.Add(time.Hour)
	return &domain.Product{
		ID:          shop + "-" + id,
		ShopifyID:   id,
		ShopDomain:  shop,
		Title:       title,
		Handle:      "handle-" + id,
		Description: "<p>desc</p>",
		Vendor:      "Acme",
		ProductType: "Shoes",
		Tags:        []string{"summer", "sale"},
		Status:      "active",
		Images: []domain.ProductImage{
			{ID: "img-1", ShopifyID: "1", ProductID: shop + "-" + id, Src: "https://cdn.example.com/a.png", Position: 1, Width: 100, Height: 80},
		},
		SEO:         domain.SEO{Title: "seo title"},
		CreatedAt:   base,
		UpdatedAt:   base,
		PublishedAt: &published,
	}
}

func testProducts(t *testing.T, repos *repository.Repositories) {
	ctx := context.Background()
	r := repos.Product

	_, err := r.Get(ctx, "missing")
	var nf *errors.ErrNotFound
	require.True(t, stderrors.As(err, &nf))

	p := product("a.myshopify.com", "100", "Sneaker")
	require.NoError(t, r.Save(ctx, p))
	require.NoError(t, r.Save(ctx, product("a.myshopify.com", "101", "Boot")))
	require.NoError(t, r.Save(ctx, product("b.myshopify.com", "200", "Hat")))

	got, err := r.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sneaker", got.Title)
	assert.Equal(t, []string{"summer", "sale"}, got.Tags)
	require.Len(t, got.Images, 1)
	assert.Equal(t, "https://cdn.example.com/a.png", got.Images[0].Src)
	assert.Equal(t, "seo title", got.SEO.Title)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, got.PublishedAt.Equal(*p.PublishedAt))

	// save is an upsert
	p.Title = "Sneaker v2"
	p.Tags = nil
	require.NoError(t, r.Save(ctx, p))
	got, err = r.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sneaker v2", got.Title)
	assert.Empty(t, got.Tags)

	n, err := r.CountByShop(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := r.ListByShop(ctx, "a.myshopify.com", 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a.myshopify.com-101", list[0].ID)

	compare := decimal.RequireFromString("25.00")
	v1 := &domain.ProductVariant{
		ID: "variant-9001", ShopifyID: "9001", ProductID: p.ID, Title: "Small",
		Price: decimal.RequireFromString("19.99"), CompareAtPrice: &compare,
		SKU: "SNK-S", InventoryQuantity: 4, InventoryPolicy: "deny",
		InventoryManagement: "shopify", Weight: 0.5, WeightUnit: "kg", Position: 1,
		Option1: "S", CreatedAt: base, UpdatedAt: base,
	}
	v2 := &domain.ProductVariant{
		ID: "variant-9002", ShopifyID: "9002", ProductID: p.ID, Title: "Large",
		Price: decimal.RequireFromString("21.50"), SKU: "SNK-L", InventoryPolicy: "deny",
		InventoryManagement: "not_managed", WeightUnit: "kg", Position: 2,
		CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, r.SaveVariant(ctx, v1))
	require.NoError(t, r.SaveVariant(ctx, v2))
	v1.InventoryQuantity = 3
	require.NoError(t, r.SaveVariant(ctx, v1))

	variants, err := r.ListVariants(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "variant-9001", variants[0].ID)
	assert.Equal(t, 3, variants[0].InventoryQuantity)
	assert.True(t, variants[0].Price.Equal(decimal.RequireFromString("19.99")))
	require.NotNil(t, variants[0].CompareAtPrice)
	assert.True(t, variants[0].CompareAtPrice.Equal(compare))
	assert.Nil(t, variants[1].CompareAtPrice)

	require.NoError(t, r.Delete(ctx, p.ID))
	require.NoError(t, r.Delete(ctx, p.ID), "deleting twice is fine")
	_, err = r.Get(ctx, p.ID)
	assert.Error(t, err)
	variants, err = r.ListVariants(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, variants)
}

func testInventory(t *testing.T, repos *repository.Repositories) {
	ctx := context.Background()
	r := repos.Inventory

	l := &domain.InventoryLevel{
		ID: "808-55", ShopDomain: "a.myshopify.com", ShopifyInventoryItemID: "808",
		ShopifyLocationID: "55", Available: 7, OnHand: 9, UpdatedAt: base,
	}
	require.NoError(t, r.Save(ctx, l))
	l.Available = 2
	require.NoError(t, r.Save(ctx, l))

	got, err := r.Get(ctx, "808-55")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Available)
	assert.Equal(t, 9, got.OnHand)
	assert.Equal(t, "55", got.ShopifyLocationID)

	_, err = r.Get(ctx, "nope")
	assert.Error(t, err)
}

func testSyncLogs(t *testing.T, repos *repository.Repositories) {
	ctx := context.Background()
	r := repos.SyncLog

	for i, id := range []string{"log-1", "log-2", "log-3"} {
		require.NoError(t, r.Save(ctx, &domain.SyncLog{
			ID: id, ShopDomain: "a.myshopify.com", EventType: domain.SyncEventProductUpdate,
			ShopifyID: "100", Status: domain.SyncStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, r.Save(ctx, &domain.SyncLog{
		ID: "other", ShopDomain: "b.myshopify.com", EventType: domain.SyncEventProductDelete,
		Status: domain.SyncStatusSuccess, CreatedAt: base,
	}))

	msg := "title is required"
	require.NoError(t, r.Save(ctx, &domain.SyncLog{
		ID: "log-2", ShopDomain: "a.myshopify.com", EventType: domain.SyncEventProductUpdate,
		ShopifyID: "100", Status: domain.SyncStatusError, ErrorMessage: &msg,
		CreatedAt: base.Add(time.Minute),
	}))

	logs, err := r.ListByShop(ctx, "a.myshopify.com", 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "log-3", logs[0].ID)
	assert.Equal(t, "log-2", logs[1].ID)
	assert.Equal(t, domain.SyncStatusError, logs[1].Status)
	require.NotNil(t, logs[1].ErrorMessage)
	assert.Equal(t, msg, *logs[1].ErrorMessage)
	assert.Nil(t, logs[0].ErrorMessage)

	logs, err = r.ListByShop(ctx, "a.myshopify.com", 2)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func testShops(t *testing.T, repos *repository.Repositories) {
	ctx := context.Background()
	r := repos.Shop

	ok, err := r.Deactivate(ctx, "ghost.myshopify.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Upsert(ctx, &domain.Shop{
		Domain: "a.myshopify.com", AccessToken: "tok-1", Scope: "read_products", IsActive: true,
	}))
	require.NoError(t, r.Upsert(ctx, &domain.Shop{Domain: "b.myshopify.com", AccessToken: "tok-b", IsActive: true}))

	first, err := r.GetByDomain(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first.AccessToken)
	assert.False(t, first.InstalledAt.IsZero())

	require.NoError(t, r.Upsert(ctx, &domain.Shop{Domain: "a.myshopify.com", AccessToken: "tok-2", IsActive: true}))
	again, err := r.GetByDomain(ctx, "a.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", again.AccessToken)
	assert.True(t, again.InstalledAt.Equal(first.InstalledAt), "reinstall keeps the original install time")

	ok, err = r.Deactivate(ctx, "b.myshopify.com")
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a.myshopify.com", active[0].Domain)

	_, err = r.GetByDomain(ctx, "ghost.myshopify.com")
	assert.Error(t, err)
}
