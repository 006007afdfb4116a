package service

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/shopify"
	"github.com/jafarshop/shopsync/pkg/errors"
)

const (
	MaxBulkProducts = 1000
	minTokenLength  = 10
)

// InvalidProduct explains why one entry of a bulk request was rejected
type InvalidProduct struct {
	Index  int      `json:"index"`
	ID     any      `json:"id,omitempty"`
	Errors []string `json:"errors"`
}

// ValidateProducts checks a bulk product list. The error is set when the list
// itself is unusable; per-product problems are reported in invalid.
func ValidateProducts(raw []json.RawMessage) (valid []shopify.ProductPayload, invalid []InvalidProduct, err error) {
	if len(raw) == 0 {
		return nil, nil, &errors.ErrValidation{Message: "products must be a non-empty array"}
	}
	if len(raw) > MaxBulkProducts {
		return nil, nil, &errors.ErrValidation{
			Message: fmt.Sprintf("too many products: %d (max %d)", len(raw), MaxBulkProducts),
		}
	}

	for i, item := range raw {
		p, problems, id := validateProduct(item)
		if len(problems) > 0 {
			invalid = append(invalid, InvalidProduct{Index: i, ID: id, Errors: problems})
			continue
		}
		valid = append(valid, p)
	}
	return valid, invalid, nil
}

func validateProduct(item json.RawMessage) (shopify.ProductPayload, []string, any) {
	var p shopify.ProductPayload

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return p, []string{"product must be an object"}, nil
	}

	var problems []string
	var id any
	if rawID, ok := fields["id"]; !ok || isNull(rawID) {
		problems = append(problems, "id is required")
	} else {
		_ = json.Unmarshal(rawID, &id)
		switch v := id.(type) {
		case float64:
		case string:
			if strings.TrimSpace(v) == "" {
				problems = append(problems, "id must not be empty")
			}
		default:
			problems = append(problems, "id must be a number or string")
		}
	}

	if rawTitle, ok := fields["title"]; !ok {
		problems = append(problems, "title is required")
	} else {
		var title string
		if err := json.Unmarshal(rawTitle, &title); err != nil {
			problems = append(problems, "title must be a string")
		}
	}

	if rawPrice, ok := fields["price"]; ok && !isNull(rawPrice) {
		if msg := checkPrice(rawPrice); msg != "" {
			problems = append(problems, msg)
		}
	}

	for _, key := range []string{"variants", "images"} {
		if v, ok := fields[key]; ok && !isNull(v) && !startsWith(v, '[') {
			problems = append(problems, key+" must be an array")
		}
	}
	if v, ok := fields["tags"]; ok && !isNull(v) && !startsWith(v, '[') && !startsWith(v, '"') {
		problems = append(problems, "tags must be a string or an array")
	}

	if len(problems) > 0 {
		return p, problems, id
	}
	if err := json.Unmarshal(item, &p); err != nil {
		return p, []string{fmt.Sprintf("invalid product: %v", err)}, id
	}
	return p, nil, id
}

func checkPrice(raw json.RawMessage) string {
	var s string
	if startsWith(raw, '"') {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "price must be a number"
		}
	} else {
		s = string(bytes.TrimSpace(raw))
	}
	price, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return "price must be a number"
	}
	if price.IsNegative() {
		return "price must not be negative"
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func startsWith(raw json.RawMessage, c byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == c
}

// ValidateShopAuth checks the shop domain and access token of a sync request
// and returns the token to use: the stored one for an installed shop, else
// the supplied one.
func (s *SyncService) ValidateShopAuth(ctx context.Context, shopDomain, accessToken string) (string, error) {
	shopDomain = strings.TrimSpace(shopDomain)
	accessToken = strings.TrimSpace(accessToken)

	switch {
	case shopDomain == "":
		return "", &errors.ErrValidation{Message: "Missing shop domain"}
	case !shopify.IsValidShopDomain(shopDomain):
		err := &errors.ErrValidation{Message: "Invalid shop domain format"}
		s.errors.Track(ctx, err, monitoring.SeverityMedium, map[string]any{"shopDomain": shopDomain})
		return "", err
	case accessToken == "":
		return "", &errors.ErrValidation{Message: "Missing access token"}
	case len(accessToken) < minTokenLength:
		return "", &errors.ErrValidation{Message: "Invalid access token format"}
	}

	if stored := s.storedToken(ctx, shopDomain); stored != "" {
		return stored, nil
	}
	return accessToken, nil
}

// ShopToken is the token for queued webhook work: the stored one, else the
// configured fallback.
func (s *SyncService) ShopToken(ctx context.Context, shopDomain string) string {
	if stored := s.storedToken(ctx, shopDomain); stored != "" {
		return stored
	}
	return s.fallback
}

func (s *SyncService) storedToken(ctx context.Context, shopDomain string) string {
	shop, err := s.repos.Shop.GetByDomain(ctx, shopDomain)
	if err != nil {
		var notFound *errors.ErrNotFound
		if !stderrors.As(err, &notFound) {
			s.logger.Warn("Failed to look up shop", zap.String("shop", shopDomain), zap.Error(err))
		}
		return ""
	}
	if !shop.IsActive || shop.AccessToken == "" {
		return ""
	}
	token, err := s.tokens.Decrypt(shop.AccessToken)
	if err != nil {
		s.logger.Error("Failed to decrypt stored access token", zap.String("shop", shopDomain), zap.Error(err))
		return ""
	}
	return token
}
