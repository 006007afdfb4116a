package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/repository/postgres"
	"github.com/jafarshop/shopsync/internal/shopify"
)

func main() {
	_ = godotenv.Load(".env")

	shopFlag := flag.String("shop", "", "Shop domain (defaults to SHOPIFY_SHOP_DOMAIN)")
	limitFlag := flag.Int("limit", 20, "Number of logs to show, newest first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	shop := shopify.NormalizeShopDomain(*shopFlag)
	if shop == "" {
		shop = shopify.NormalizeShopDomain(cfg.Shopify.ShopDomain)
	}
	if shop == "" {
		fmt.Fprintf(os.Stderr, "Error: --shop is required.\n")
		fmt.Fprintf(os.Stderr, "Usage: go run ./cmd/list-sync-logs --shop store.myshopify.com [--limit 50]\n")
		os.Exit(1)
	}
	if !cfg.Database.Enabled() {
		fmt.Fprintf(os.Stderr, "Error: DB_HOST is not set.\n")
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)
	ctx := context.Background()

	logs, err := repos.SyncLog.ListByShop(ctx, shop, *limitFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sync logs: %v\n", err)
		os.Exit(1)
	}
	total, err := repos.Product.CountByShop(ctx, shop)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to count products: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Shop: %s (%d products stored)\n", shop, total)
	fmt.Println(strings.Repeat("=", 100))
	if len(logs) == 0 {
		fmt.Println("No sync logs found.")
		return
	}

	fmt.Printf("%-20s %-18s %-16s %-9s %s\n", "TIME", "EVENT", "SHOPIFY ID", "STATUS", "ERROR")
	for _, l := range logs {
		errMsg := ""
		if l.ErrorMessage != nil {
			errMsg = *l.ErrorMessage
		}
		fmt.Printf("%-20s %-18s %-16s %-9s %s\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"), l.EventType, l.ShopifyID, l.Status, errMsg)
	}
}
