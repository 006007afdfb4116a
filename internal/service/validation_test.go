package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/jobs"
	"github.com/jafarshop/shopsync/internal/security"
	"github.com/jafarshop/shopsync/internal/shopify"
)

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, s := range items {
		out = append(out, json.RawMessage(s))
	}
	return out
}

func TestValidateProducts(t *testing.T) {
	valid, invalid, err := ValidateProducts(rawList(
		`{"id": 1, "title": "Shirt", "price": "19.90", "tags": "a, b"}`,
		`{"id": "2", "title": "Hat", "tags": ["x"], "variants": []}`,
		`{"title": "No id"}`,
		`{"id": 4, "title": 5}`,
		`{"id": 5, "title": "Neg", "price": -1}`,
		`{"id": 6, "title": "Bad", "variants": {}}`,
		`"not an object"`,
	))
	require.NoError(t, err)

	require.Len(t, valid, 2)
	assert.Equal(t, "1", valid[0].ID.String())
	assert.Equal(t, []string{"a", "b"}, []string(valid[0].Tags))
	assert.Equal(t, "2", valid[1].ID.String())

	require.Len(t, invalid, 5)
	assert.Equal(t, 2, invalid[0].Index)
	assert.Contains(t, invalid[0].Errors, "id is required")
	assert.Equal(t, 3, invalid[1].Index)
	assert.Contains(t, invalid[1].Errors, "title must be a string")
	assert.Equal(t, float64(4), invalid[1].ID)
	assert.Contains(t, invalid[2].Errors, "price must not be negative")
	assert.Contains(t, invalid[3].Errors, "variants must be an array")
	assert.Contains(t, invalid[4].Errors, "product must be an object")
}

func TestValidateProductsRejectsBadSizes(t *testing.T) {
	_, _, err := ValidateProducts(nil)
	assert.Error(t, err)

	tooMany := make([]json.RawMessage, MaxBulkProducts+1)
	for i := range tooMany {
		tooMany[i] = json.RawMessage(`{"id": 1, "title": "x"}`)
	}
	_, _, err = ValidateProducts(tooMany)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many products")
}

func TestValidateShopAuth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		shop, token, want string
	}{
		{"", "shpat_0123456789", "Missing shop domain"},
		{"evil.example.com", "shpat_0123456789", "Invalid shop domain format"},
		{testShop, "", "Missing access token"},
		{testShop, "  short  ", "Invalid access token format"},
	}
	for _, tc := range cases {
		_, err := env.svc.ValidateShopAuth(ctx, tc.shop, tc.token)
		require.Error(t, err, tc.want)
		assert.Equal(t, tc.want, err.Error())
	}

	token, err := env.svc.ValidateShopAuth(ctx, testShop, "shpat_0123456789")
	require.NoError(t, err)
	assert.Equal(t, "shpat_0123456789", token)
}

func TestStoredTokenIsPreferred(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cipher := security.NewTokenCipher(strings.Repeat("k", 32))
	env.svc.tokens = cipher
	sealed, err := cipher.Encrypt("shpat_stored_token")
	require.NoError(t, err)
	require.NoError(t, env.repos.Shop.Upsert(ctx, &domain.Shop{Domain: testShop, AccessToken: sealed, IsActive: true}))

	token, err := env.svc.ValidateShopAuth(ctx, testShop, "shpat_request_token")
	require.NoError(t, err)
	assert.Equal(t, "shpat_stored_token", token)
	assert.Equal(t, "shpat_stored_token", env.svc.ShopToken(ctx, testShop))

	_, err = env.repos.Shop.Deactivate(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, "shpat_fallback_token", env.svc.ShopToken(ctx, testShop))
}

func TestJobStatusEstimate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	job := &jobs.Job{
		ID:        "bulk_sync_1",
		Status:    domain.JobStatusRunning,
		StartTime: now.Add(-30 * time.Second),
		Progress:  &jobs.Progress{Current: 1, Total: 4, Percentage: 25},
	}

	view := newJobStatusView(job, now)
	assert.True(t, view.IsActive)
	assert.Equal(t, int64(30000), view.ElapsedTime)
	require.NotNil(t, view.EstimatedTimeRemaining)
	assert.Equal(t, int64(90000), *view.EstimatedTimeRemaining)

	job.Progress = nil
	assert.Nil(t, newJobStatusView(job, now).EstimatedTimeRemaining)

	end := now.Add(-10 * time.Second)
	job.Status = domain.JobStatusCompleted
	job.EndTime = &end
	view = newJobStatusView(job, now)
	assert.False(t, view.IsActive)
	assert.Equal(t, int64(20000), view.ElapsedTime)
	assert.Nil(t, view.EstimatedTimeRemaining)
}

func TestJobStatusUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.JobStatus("missing")
	assert.Error(t, err)
}

func TestSyncStatusAggregates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		require.NoError(t, env.svc.ProcessProductWebhook(ctx, testShop, product(i)))
	}
	require.Error(t, env.svc.ProcessInventoryWebhook(ctx, testShop, shopify.InventoryLevelPayload{InventoryItemID: "1"}))

	status, err := env.svc.SyncStatus(ctx, testShop)
	require.NoError(t, err)
	assert.Equal(t, 12, status.TotalProducts)
	assert.Equal(t, 12, status.SuccessfulSyncs)
	assert.Equal(t, 1, status.FailedSyncs)
	assert.Equal(t, 0, status.PendingSyncs)
	assert.Len(t, status.RecentLogs, recentLogCount)
	assert.NotNil(t, status.LastSyncTime)

	empty, err := env.svc.SyncStatus(ctx, "empty.myshopify.com")
	require.NoError(t, err)
	assert.Nil(t, empty.LastSyncTime)
	assert.NotNil(t, empty.RecentLogs)
}
