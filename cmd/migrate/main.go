package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/repository/postgres"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Database.Enabled() {
		fmt.Fprintf(os.Stderr, "Error: DB_HOST is not set, nothing to migrate.\n")
		os.Exit(1)
	}

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := postgres.RunMigrations(context.Background(), db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing migrations: %v\n", err)
		os.Exit(1)
	}

	if len(applied) == 0 {
		fmt.Println("Schema is up to date.")
		return
	}
	for _, v := range applied {
		fmt.Printf("Applied migration %04d\n", v)
	}
	fmt.Println("Migration completed successfully!")
}
