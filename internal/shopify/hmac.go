package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// MaxWebhookBody caps how much of a webhook body is read.
const MaxWebhookBody = 5 << 20

var shopDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)

// Sign returns the base64 HMAC-SHA256 Shopify puts in X-Shopify-Hmac-Sha256.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateWebhook checks a webhook signature over the raw, unparsed body.
// An empty secret or header never validates.
func ValidateWebhook(body []byte, header, secret string) bool {
	header = strings.TrimSpace(header)
	if secret == "" || header == "" {
		return false
	}
	expected := Sign(body, secret)
	// constant-time compare
	return hmac.Equal([]byte(expected), []byte(header))
}

// ValidateOAuthQuery checks the hmac parameter Shopify adds to install and callback redirects.
// The message is the sorted query string without the hmac and signature parameters.
func ValidateOAuthQuery(q url.Values, secret string) bool {
	provided := q.Get("hmac")
	if secret == "" || provided == "" {
		return false
	}

	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonicalQuery(q)))
	return hmac.Equal(mac.Sum(nil), got)
}

// SignOAuthQuery returns the hex hmac for q, ignoring any hmac already present.
func SignOAuthQuery(q url.Values, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonicalQuery(q)))
	return hex.EncodeToString(mac.Sum(nil))
}

func canonicalQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		for _, v := range q[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, "&")
}

// IsValidShopDomain accepts only <name>.myshopify.com hosts.
func IsValidShopDomain(shop string) bool {
	return shopDomainPattern.MatchString(shop)
}

// NormalizeShopDomain strips scheme and trailing slashes from a shop domain.
func NormalizeShopDomain(shop string) string {
	shop = strings.TrimSpace(shop)
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	shop = strings.TrimSuffix(shop, "/")
	return strings.ToLower(shop)
}
