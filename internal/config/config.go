package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Redis       RedisConfig
	Shopify     ShopifyConfig
	Security    SecurityConfig
	Kafka       KafkaConfig
	Slack       SlackConfig
	Log         LogConfig
	Sync        SyncConfig
}

// DatabaseConfig is optional: an empty Host keeps everything in memory
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Enabled reports whether a Postgres store should be used
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// RedisConfig backs the product cache and the distributed rate limiter when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ShopifyConfig struct {
	APIKey        string // SHOPIFY_API_KEY: OAuth client id
	APISecret     string // SHOPIFY_API_SECRET: OAuth client secret, also signs callback queries
	Scopes        string
	AppURL        string // public base URL, used for redirect_uri and webhook callbacks
	WebhookSecret string // SHOPIFY_WEBHOOK_SECRET: verify incoming webhooks (X-Shopify-Hmac-Sha256)
	APIVersion    string
	ShopDomain    string // fallback shop for the command-line tools
	AccessToken   string // fallback token when a shop has no stored token
}

type SecurityConfig struct {
	EncryptionKey   string // ENCRYPTION_KEY: seals stored access tokens; empty stores them as-is
	AdminAPIKeyHash string // ADMIN_API_KEY_HASH: bcrypt hash guarding /api/sync; empty disables the check
}

// KafkaConfig enables the Kafka event publisher when Brokers is set
type KafkaConfig struct {
	Brokers string // comma separated
	Topic   string
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type LogConfig struct {
	Level       string
	Encoding    string // json or console
	Development bool
}

type SyncConfig struct {
	MaxAttempts         int
	CleanupSchedule     string // cron spec with seconds
	SweepSchedule       string
	IncrementalSchedule string // empty disables periodic incremental sync
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	environment := getEnvOrViper("ENVIRONMENT", "development")
	defaultEncoding := "json"
	if environment != "production" {
		defaultEncoding = "console"
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: environment,
		Database: DatabaseConfig{
			Host:     strings.TrimSpace(getEnvOrViper("DB_HOST", "")),
			Port:     getEnvOrViper("DB_PORT", "5432"),
			User:     getEnvOrViper("DB_USER", "postgres"),
			Password: getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:   getEnvOrViper("DB_NAME", "shopsync"),
			SSLMode:  getEnvOrViper("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getEnvOrViper("REDIS_ADDR", "")),
			Password: getEnvOrViper("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Shopify: ShopifyConfig{
			APIKey:        strings.TrimSpace(getEnvOrViper("SHOPIFY_API_KEY", "")),
			APISecret:     strings.TrimSpace(getEnvOrViper("SHOPIFY_API_SECRET", "")),
			Scopes:        getEnvOrViper("SHOPIFY_SCOPES", "read_products,read_inventory"),
			AppURL:        strings.TrimSuffix(strings.TrimSpace(getEnvOrViper("SHOPIFY_APP_URL", "")), "/"),
			WebhookSecret: strings.TrimSpace(getEnvOrViper("SHOPIFY_WEBHOOK_SECRET", "")),
			APIVersion:    getEnvOrViper("SHOPIFY_API_VERSION", "2026-01"),
			ShopDomain:    strings.TrimSpace(getEnvOrViper("SHOPIFY_SHOP_DOMAIN", "")),
			AccessToken:   strings.TrimSpace(getEnvOrViper("SHOPIFY_ACCESS_TOKEN", "")),
		},
		Security: SecurityConfig{
			EncryptionKey:   strings.TrimSpace(getEnvOrViper("ENCRYPTION_KEY", "")),
			AdminAPIKeyHash: strings.TrimSpace(getEnvOrViper("ADMIN_API_KEY_HASH", "")),
		},
		Kafka: KafkaConfig{
			Brokers: strings.TrimSpace(getEnvOrViper("KAFKA_BROKERS", "")),
			Topic:   getEnvOrViper("KAFKA_TOPIC", "shopsync.events"),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getEnvOrViper("SLACK_WEBHOOK_URL", "")),
			Channel:    getEnvOrViper("SLACK_CHANNEL", ""),
		},
		Log: LogConfig{
			Level:       getEnvOrViper("LOG_LEVEL", "info"),
			Encoding:    getEnvOrViper("LOG_ENCODING", defaultEncoding),
			Development: environment != "production",
		},
		Sync: SyncConfig{
			MaxAttempts:         getIntOrDefault("SYNC_MAX_ATTEMPTS", 3),
			CleanupSchedule:     getEnvOrViper("SYNC_CLEANUP_SCHEDULE", "0 0 * * * *"),
			SweepSchedule:       getEnvOrViper("RATE_LIMIT_SWEEP_SCHEDULE", "0 * * * * *"),
			IncrementalSchedule: getEnvOrViper("SYNC_INCREMENTAL_SCHEDULE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	if c.Environment == "production" && c.Shopify.WebhookSecret == "" {
		return fmt.Errorf("SHOPIFY_WEBHOOK_SECRET is required in production")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 32 characters")
	}
	return nil
}

// ShopifyOAuthEnabled reports whether the install flow can run
func (c *Config) ShopifyOAuthEnabled() bool {
	return c.Shopify.APIKey != "" && c.Shopify.APISecret != "" && c.Shopify.AppURL != ""
}

// ShutdownTimeout bounds graceful shutdown of the server and the queue
func (c *Config) ShutdownTimeout() time.Duration {
	return 10 * time.Second
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	raw := strings.TrimSpace(getEnvOrViper(key, ""))
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}
