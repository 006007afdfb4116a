package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SYNC_MAX_ATTEMPTS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, "console", cfg.Log.Encoding)
	assert.True(t, cfg.Log.Development)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SYNC_MAX_ATTEMPTS", "5")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SHOPIFY_APP_URL", "https://sync.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "https://sync.example.com", cfg.Shopify.AppURL)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Environment: "production", Sync: SyncConfig{MaxAttempts: 3}}
	assert.Error(t, cfg.Validate(), "production needs a webhook secret")

	cfg.Shopify.WebhookSecret = "whsec"
	assert.NoError(t, cfg.Validate())

	cfg.Security.EncryptionKey = "short"
	assert.Error(t, cfg.Validate())

	cfg.Security.EncryptionKey = "0123456789abcdef0123456789abcdef"
	cfg.Sync.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestDatabaseEnabled(t *testing.T) {
	assert.False(t, DatabaseConfig{}.Enabled())
	assert.True(t, DatabaseConfig{Host: "localhost"}.Enabled())
}
