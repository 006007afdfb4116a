package service

import (
	"strconv"
	"time"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/shopify"
)

// Variant fields Shopify may omit
const (
	defaultInventoryPolicy     = "deny"
	defaultInventoryManagement = "not_managed"
	defaultWeightUnit          = "kg"
)

// ProductID is the local id of a Shopify product within a shop.
func ProductID(shopDomain, shopifyID string) string {
	return shopDomain + "-" + shopifyID
}

func variantID(shopifyID string) string { return "variant-" + shopifyID }

func inventoryID(itemID, locationID string) string { return itemID + "-" + locationID }

func transformProduct(p shopify.ProductPayload, shopDomain string, now time.Time) *domain.Product {
	id := ProductID(shopDomain, p.ID.String())

	product := &domain.Product{
		ID:          id,
		ShopifyID:   p.ID.String(),
		ShopDomain:  shopDomain,
		Title:       p.Title,
		Handle:      p.Handle,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        []string(p.Tags),
		Status:      p.Status,
		SEO: domain.SEO{
			Title:       p.SEOTitle,
			Description: p.SEODescription,
		},
		CreatedAt:   parseTime(p.CreatedAt, now),
		UpdatedAt:   parseTime(p.UpdatedAt, now),
		PublishedAt: parseOptionalTime(p.PublishedAt),
	}
	if product.Tags == nil {
		product.Tags = []string{}
	}
	if product.Status == "" {
		product.Status = "active"
	}

	product.Images = make([]domain.ProductImage, 0, len(p.Images))
	for i, img := range p.Images {
		position := img.Position
		if position == 0 {
			position = i + 1
		}
		product.Images = append(product.Images, domain.ProductImage{
			ID:        shopDomain + "-" + img.ID.String(),
			ShopifyID: img.ID.String(),
			ProductID: id,
			Src:       img.Src,
			Alt:       img.Alt,
			Position:  position,
			Width:     img.Width,
			Height:    img.Height,
		})
	}
	return product
}

func transformVariant(v shopify.VariantPayload, productID string, now time.Time) *domain.ProductVariant {
	variant := &domain.ProductVariant{
		ID:                  variantID(v.ID.String()),
		ShopifyID:           v.ID.String(),
		ProductID:           productID,
		Title:               v.Title,
		Price:               v.Price,
		CompareAtPrice:      v.CompareAtPrice,
		SKU:                 v.SKU,
		Barcode:             v.Barcode,
		InventoryQuantity:   v.InventoryQuantity,
		InventoryPolicy:     v.InventoryPolicy,
		InventoryManagement: v.InventoryManagement,
		Weight:              v.Weight,
		WeightUnit:          v.WeightUnit,
		Position:            v.Position,
		Option1:             v.Option1,
		Option2:             v.Option2,
		Option3:             v.Option3,
		CreatedAt:           parseTime(v.CreatedAt, now),
		UpdatedAt:           parseTime(v.UpdatedAt, now),
	}
	if variant.InventoryPolicy == "" {
		variant.InventoryPolicy = defaultInventoryPolicy
	}
	if variant.InventoryManagement == "" {
		variant.InventoryManagement = defaultInventoryManagement
	}
	if variant.WeightUnit == "" {
		variant.WeightUnit = defaultWeightUnit
	}
	if variant.Position == 0 {
		variant.Position = 1
	}
	return variant
}

func transformInventory(p shopify.InventoryLevelPayload, shopDomain string, now time.Time) *domain.InventoryLevel {
	return &domain.InventoryLevel{
		ID:                     inventoryID(p.InventoryItemID.String(), p.LocationID.String()),
		ShopDomain:             shopDomain,
		ShopifyInventoryItemID: p.InventoryItemID.String(),
		ShopifyLocationID:      p.LocationID.String(),
		Available:              p.Available,
		Reserved:               p.Reserved,
		OnHand:                 p.OnHand,
		Committed:              p.Committed,
		Incoming:               p.Incoming,
		UpdatedAt:              parseTime(p.UpdatedAt, now),
	}
}

// parseTime reads Shopify's RFC 3339 timestamps, falling back when absent or malformed.
func parseTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback
	}
	return t.UTC()
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// lastID is the numeric cursor after a page, or "" when the page is empty.
func lastID(page []shopify.ProductPayload) string {
	if len(page) == 0 {
		return ""
	}
	id := page[len(page)-1].ID.String()
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return ""
	}
	return id
}
