package shopify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is a Shopify resource id. Webhooks send numbers, hand-built payloads often send strings.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Tags accepts Shopify's comma separated string as well as a JSON array.
type Tags []string

func (t *Tags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*t = cleanTags(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = cleanTags(strings.Split(s, ","))
	return nil
}

func cleanTags(in []string) Tags {
	out := make(Tags, 0, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// ProductPayload is the REST/webhook shape of a product
type ProductPayload struct {
	ID             ID               `json:"id"`
	Title          string           `json:"title"`
	Handle         string           `json:"handle"`
	BodyHTML       string           `json:"body_html"`
	Vendor         string           `json:"vendor"`
	ProductType    string           `json:"product_type"`
	Tags           Tags             `json:"tags"`
	Status         string           `json:"status"`
	CreatedAt      string           `json:"created_at"`
	UpdatedAt      string           `json:"updated_at"`
	PublishedAt    string           `json:"published_at"`
	SEOTitle       string           `json:"seo_title"`
	SEODescription string           `json:"seo_description"`
	Images         []ImagePayload   `json:"images"`
	Variants       []VariantPayload `json:"variants"`
}

type ImagePayload struct {
	ID       ID     `json:"id"`
	Src      string `json:"src"`
	Alt      string `json:"alt"`
	Position int    `json:"position"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type VariantPayload struct {
	ID                  ID               `json:"id"`
	Title               string           `json:"title"`
	Price               decimal.Decimal  `json:"price"`
	CompareAtPrice      *decimal.Decimal `json:"compare_at_price"`
	SKU                 string           `json:"sku"`
	Barcode             string           `json:"barcode"`
	InventoryQuantity   int              `json:"inventory_quantity"`
	InventoryPolicy     string           `json:"inventory_policy"`
	InventoryManagement string           `json:"inventory_management"`
	Weight              float64          `json:"weight"`
	WeightUnit          string           `json:"weight_unit"`
	Position            int              `json:"position"`
	Option1             string           `json:"option1"`
	Option2             string           `json:"option2"`
	Option3             string           `json:"option3"`
	CreatedAt           string           `json:"created_at"`
	UpdatedAt           string           `json:"updated_at"`
}

// InventoryLevelPayload is the inventory_levels/update webhook body
type InventoryLevelPayload struct {
	InventoryItemID ID     `json:"inventory_item_id"`
	LocationID      ID     `json:"location_id"`
	Available       int    `json:"available"`
	Reserved        int    `json:"reserved"`
	OnHand          int    `json:"on_hand"`
	Committed       int    `json:"committed"`
	Incoming        int    `json:"incoming"`
	UpdatedAt       string `json:"updated_at"`
}

// DeletePayload is the products/delete webhook body
type DeletePayload struct {
	ID ID `json:"id"`
}

type productsResponse struct {
	Products []ProductPayload `json:"products"`
}
