package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shop is an installed merchant store
type Shop struct {
	Domain      string    `json:"shopDomain"`
	AccessToken string    `json:"-"` // sealed with the encryption key when one is configured
	Scope       string    `json:"scope"`
	IsActive    bool      `json:"isActive"`
	InstalledAt time.Time `json:"installedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Product is the local mirror of a Shopify product
type Product struct {
	ID          string         `json:"id"` // "<shopDomain>-<shopifyId>"
	ShopifyID   string         `json:"shopifyId"`
	ShopDomain  string         `json:"shopDomain"`
	Title       string         `json:"title"`
	Handle      string         `json:"handle"`
	Description string         `json:"description"`
	Vendor      string         `json:"vendor"`
	ProductType string         `json:"productType"`
	Tags        []string       `json:"tags"`
	Status      string         `json:"status"`
	Images      []ProductImage `json:"images"`
	SEO         SEO            `json:"seo"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
}

// ProductImage is an image attached to a product
type ProductImage struct {
	ID        string `json:"id"`
	ShopifyID string `json:"shopifyId"`
	ProductID string `json:"productId"`
	Src       string `json:"src"`
	Alt       string `json:"alt,omitempty"`
	Position  int    `json:"position"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// SEO holds search-engine overrides for a product
type SEO struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// ProductVariant is one purchasable variant of a product
type ProductVariant struct {
	ID                  string           `json:"id"` // "variant-<shopifyId>"
	ShopifyID           string           `json:"shopifyId"`
	ProductID           string           `json:"productId"`
	Title               string           `json:"title"`
	Price               decimal.Decimal  `json:"price"`
	CompareAtPrice      *decimal.Decimal `json:"compareAtPrice,omitempty"`
	SKU                 string           `json:"sku"`
	Barcode             string           `json:"barcode,omitempty"`
	InventoryQuantity   int              `json:"inventoryQuantity"`
	InventoryPolicy     string           `json:"inventoryPolicy"`
	InventoryManagement string           `json:"inventoryManagement"`
	Weight              float64          `json:"weight"`
	WeightUnit          string           `json:"weightUnit"`
	Position            int              `json:"position"`
	Option1             string           `json:"option1,omitempty"`
	Option2             string           `json:"option2,omitempty"`
	Option3             string           `json:"option3,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// InventoryLevel is the stock of one inventory item at one location
type InventoryLevel struct {
	ID                     string    `json:"id"` // "<inventoryItemId>-<locationId>"
	ShopDomain             string    `json:"shopDomain"`
	ShopifyInventoryItemID string    `json:"shopifyInventoryItemId"`
	ShopifyLocationID      string    `json:"shopifyLocationId"`
	VariantID              string    `json:"variantId"`
	Available              int       `json:"available"`
	Reserved               int       `json:"reserved"`
	OnHand                 int       `json:"onHand"`
	Committed              int       `json:"committed"`
	Incoming               int       `json:"incoming"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// SyncLog records one attempt to apply an upstream change locally
type SyncLog struct {
	ID           string        `json:"id"`
	ShopDomain   string        `json:"shopDomain"`
	EventType    SyncEventType `json:"eventType"`
	ShopifyID    string        `json:"shopifyId"`
	Status       SyncStatus    `json:"status"`
	ErrorMessage *string       `json:"errorMessage,omitempty"`
	RetryCount   int           `json:"retryCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}
