package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/shopify"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	token := cfg.Shopify.AccessToken
	fmt.Printf("Testing Shopify connection...\n\n")
	fmt.Printf("Shop Domain: %s\n", cfg.Shopify.ShopDomain)
	fmt.Printf("Access Token: %s...%s\n", token[:min(10, len(token))], token[max(0, len(token)-4):])
	fmt.Println()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	client := shopify.NewClient(cfg.Shopify, logger)

	resp, err := client.Execute(context.Background(), cfg.Shopify.ShopDomain, token, shopify.ShopQuery, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n\n", err)
		fmt.Println("Please check:")
		fmt.Println("  1. SHOPIFY_SHOP_DOMAIN format: should be 'store-name.myshopify.com' (no https://)")
		fmt.Println("  2. SHOPIFY_ACCESS_TOKEN: should start with 'shpat_' and be the full token")
		fmt.Println("  3. Token permissions: needs 'read_products' scope")
		os.Exit(1)
	}

	fmt.Println("Connection successful!")
	fmt.Printf("Response: %s\n", string(resp.Data))

	products, err := client.ListProducts(context.Background(), cfg.Shopify.ShopDomain, token, shopify.ProductQuery{Limit: 5})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing products failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nFirst %d products:\n", len(products))
	for _, p := range products {
		fmt.Printf("  %s  %s\n", p.ID, p.Title)
	}
}
