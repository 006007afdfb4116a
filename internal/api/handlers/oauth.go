package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/domain"
	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/shopify"
)

// installSessionTTL bounds how long a merchant has to approve the install.
const installSessionTTL = 10 * time.Minute

func installStateKey(state string) string { return "install-state-" + state }

func appAdminURL(cfg *config.Config, shop string) string {
	return fmt.Sprintf("https://%s/admin/apps/%s", shop, cfg.Shopify.APIKey)
}

// HandleInstall handles GET /api/shopify?shop= and redirects to Shopify's consent screen
func HandleInstall(cfg *config.Config, deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		shop := shopify.NormalizeShopDomain(c.Query("shop"))
		if shop == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing shop parameter"})
			return
		}
		if !shopify.IsValidShopDomain(shop) {
			deps.Errors.Track(ctx, errors.New("invalid shop domain format"), monitoring.SeverityMedium, map[string]any{"shop": shop})
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shop domain"})
			return
		}
		if !cfg.ShopifyOAuthEnabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shopify oauth not configured"})
			return
		}

		if existing, err := deps.Repos.Shop.GetByDomain(ctx, shop); err == nil && existing.IsActive {
			c.Redirect(http.StatusFound, appAdminURL(cfg, shop))
			return
		}

		state := uuid.NewString()
		if err := deps.Cache.Set(ctx, installStateKey(state), []byte(shop), installSessionTTL); err != nil {
			deps.Errors.Track(ctx, err, monitoring.SeverityHigh, map[string]any{"endpoint": "shopify/oauth", "shop": shop})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initiate OAuth"})
			return
		}

		redirectURI := cfg.Shopify.AppURL + "/api/shopify/callback"
		logger.Info("Starting app install", zap.String("shop", shop))
		c.Redirect(http.StatusFound, deps.OAuth.AuthorizeURL(shop, cfg.Shopify.Scopes, redirectURI, state))
	}
}

// HandleOAuthCallback handles GET /api/shopify/callback. It stores the shop
// with its sealed offline token and queues the first full sync.
func HandleOAuthCallback(cfg *config.Config, deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		query := c.Request.URL.Query()
		code := query.Get("code")
		shop := shopify.NormalizeShopDomain(query.Get("shop"))
		state := query.Get("state")

		if code == "" || shop == "" || state == "" || query.Get("hmac") == "" {
			deps.Errors.Track(ctx, errors.New("missing required OAuth parameters"), monitoring.SeverityMedium, map[string]any{
				"code":  code != "",
				"shop":  shop != "",
				"state": state != "",
			})
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
			return
		}
		if !shopify.IsValidShopDomain(shop) {
			deps.Errors.Track(ctx, errors.New("invalid shop domain in OAuth callback"), monitoring.SeverityMedium, map[string]any{"shop": shop})
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shop domain"})
			return
		}
		if !shopify.ValidateOAuthQuery(query, cfg.Shopify.APISecret) {
			deps.Errors.Track(ctx, errors.New("invalid HMAC signature in OAuth callback"), monitoring.SeverityHigh, map[string]any{"shop": shop})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid request signature"})
			return
		}

		sessionShop, found, err := deps.Cache.Get(ctx, installStateKey(state))
		if err != nil || !found {
			deps.Errors.Track(ctx, errors.New("invalid or expired install session"), monitoring.SeverityMedium, map[string]any{"shop": shop})
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired session"})
			return
		}
		if string(sessionShop) != shop {
			deps.Errors.Track(ctx, errors.New("shop domain mismatch in OAuth callback"), monitoring.SeverityHigh, map[string]any{
				"sessionShop":  string(sessionShop),
				"callbackShop": shop,
			})
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session"})
			return
		}
		if err := deps.Cache.Delete(ctx, installStateKey(state)); err != nil {
			logger.Warn("Failed to clear install session", zap.String("shop", shop), zap.Error(err))
		}

		grant, err := deps.OAuth.ExchangeCode(ctx, shop, code)
		if err != nil {
			deps.Errors.Track(ctx, err, monitoring.SeverityCritical, map[string]any{"endpoint": "shopify/callback", "shop": shop})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Installation failed"})
			return
		}

		sealed, err := deps.Tokens.Encrypt(grant.AccessToken)
		if err != nil {
			deps.Errors.Track(ctx, err, monitoring.SeverityCritical, map[string]any{"endpoint": "shopify/callback", "shop": shop})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Installation failed"})
			return
		}
		record := &domain.Shop{Domain: shop, AccessToken: sealed, Scope: grant.Scope, IsActive: true}
		if err := deps.Repos.Shop.Upsert(ctx, record); err != nil {
			deps.Errors.Track(ctx, err, monitoring.SeverityCritical, map[string]any{"endpoint": "shopify/callback", "shop": shop})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Installation failed"})
			return
		}
		logger.Info("App installed", zap.String("shop", shop), zap.String("scope", grant.Scope))

		if jobID, err := deps.Sync.QueueFullSync(shop, grant.AccessToken); err != nil {
			deps.Errors.Track(ctx, err, monitoring.SeverityMedium, map[string]any{"shop": shop, "context": "initial_sync"})
		} else {
			logger.Info("Initial full sync queued", zap.String("shop", shop), zap.String("job_id", jobID))
		}

		c.Redirect(http.StatusFound, appAdminURL(cfg, shop))
	}
}
