package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/shopify"
)

// Subscribes the configured shop to every webhook topic the server handles.
func main() {
	_ = godotenv.Load(".env")

	shopFlag := flag.String("shop", "", "Shop domain (defaults to SHOPIFY_SHOP_DOMAIN)")
	tokenFlag := flag.String("token", "", "Admin API access token (defaults to SHOPIFY_ACCESS_TOKEN)")
	baseURLFlag := flag.String("app-url", "", "Public base URL of the server (defaults to SHOPIFY_APP_URL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	shop := shopify.NormalizeShopDomain(firstNonEmpty(*shopFlag, cfg.Shopify.ShopDomain))
	token := firstNonEmpty(*tokenFlag, cfg.Shopify.AccessToken)
	appURL := strings.TrimSuffix(firstNonEmpty(*baseURLFlag, cfg.Shopify.AppURL), "/")
	if !shopify.IsValidShopDomain(shop) || token == "" || appURL == "" {
		fmt.Fprintf(os.Stderr, "Error: a valid --shop, --token and --app-url are required.\n")
		fmt.Fprintf(os.Stderr, "Usage: go run ./cmd/register-webhooks --shop store.myshopify.com --token shpat_... --app-url https://sync.example.com\n")
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	client := shopify.NewClient(cfg.Shopify, logger)

	topics := make([]string, 0, len(shopify.WebhookTopics))
	for topic := range shopify.WebhookTopics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	failed := 0
	for _, topic := range topics {
		callback := appURL + shopify.WebhookTopics[topic]
		id, err := client.EnsureWebhook(context.Background(), shop, token, topic, callback)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %-24s FAILED: %v\n", topic, err)
			failed++
			continue
		}
		fmt.Printf("  %-24s %s -> %s\n", topic, id, callback)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d webhooks could not be registered.\n", failed, len(topics))
		os.Exit(1)
	}
	fmt.Printf("\nRegistered %d webhooks for %s.\n", len(topics), shop)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
