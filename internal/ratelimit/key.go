package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey derives the caller identity from proxy headers, then the peer address.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// ShopKey keys webhook traffic by the sending shop, falling back to ClientKey.
func ShopKey(r *http.Request) string {
	if shop := strings.TrimSpace(r.Header.Get("X-Shopify-Shop-Domain")); shop != "" {
		return "shop:" + strings.ToLower(shop)
	}
	if shop := strings.TrimSpace(r.URL.Query().Get("shop")); shop != "" {
		return "shop:" + strings.ToLower(shop)
	}
	return ClientKey(r)
}
