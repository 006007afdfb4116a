package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/events"
	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/shopify"
)

// verifiedWebhook reads the raw body and checks the Shopify signature over it.
// On failure it has already answered and returns ok=false.
func verifiedWebhook(c *gin.Context, cfg *config.Config, deps *Dependencies, endpoint string, logger *zap.Logger) (body []byte, shop string, ok bool) {
	ctx := c.Request.Context()
	secret := strings.TrimSpace(cfg.Shopify.WebhookSecret)
	if secret == "" {
		logger.Error("Webhook received but SHOPIFY_WEBHOOK_SECRET is not set", zap.String("endpoint", endpoint))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shopify webhook not configured"})
		return nil, "", false
	}

	// Read raw body (Shopify HMAC is computed over raw bytes)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, shopify.MaxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return nil, "", false
	}

	hmacHeader := c.GetHeader("X-Shopify-Hmac-Sha256")
	shop = shopify.NormalizeShopDomain(c.GetHeader("X-Shopify-Shop-Domain"))
	if hmacHeader == "" || shop == "" {
		deps.Errors.Track(ctx, errors.New("missing required headers"), monitoring.SeverityMedium, map[string]any{
			"endpoint": endpoint,
			"hasHmac":  hmacHeader != "",
			"hasShop":  shop != "",
		})
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required headers"})
		return nil, "", false
	}

	if !shopify.ValidateWebhook(body, hmacHeader, secret) {
		deps.Errors.Track(ctx, errors.New("invalid webhook signature"), monitoring.SeverityHigh, map[string]any{
			"endpoint":   endpoint,
			"shopDomain": shop,
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
		return nil, "", false
	}

	deps.Metrics.Increment("webhook.received", map[string]string{"endpoint": endpoint, "shopDomain": shop})
	return body, shop, true
}

func rejectPayload(c *gin.Context, deps *Dependencies, endpoint, shop, message string) {
	deps.Errors.TrackMessage(c.Request.Context(), message, "invalid_payload", monitoring.SeverityMedium, map[string]any{
		"endpoint":   endpoint,
		"shopDomain": shop,
	})
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// HandleProductWebhook handles POST /api/webhooks/products/{create,update}.
// The product is queued; the response never waits for it to be stored.
func HandleProductWebhook(cfg *config.Config, deps *Dependencies, action string, logger *zap.Logger) gin.HandlerFunc {
	endpoint := "products/" + action
	return func(c *gin.Context) {
		body, shop, ok := verifiedWebhook(c, cfg, deps, endpoint, logger)
		if !ok {
			return
		}

		var product shopify.ProductPayload
		if err := json.Unmarshal(body, &product); err != nil {
			rejectPayload(c, deps, endpoint, shop, "Invalid JSON payload")
			return
		}
		if product.ID == "" {
			rejectPayload(c, deps, endpoint, shop, "Missing product ID")
			return
		}

		jobID, err := deps.Sync.QueueProductSync(shop, deps.Sync.ShopToken(c.Request.Context(), shop), product)
		if err != nil {
			deps.Errors.Track(c.Request.Context(), err, monitoring.SeverityHigh, map[string]any{"endpoint": endpoint, "shopDomain": shop})
			respondError(c, err, logger)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Product " + action + " queued successfully",
			"jobId":   jobID,
		})
	}
}

// HandleProductDeleteWebhook handles POST /api/webhooks/products/delete.
// Deletes are applied inline and always acknowledged once verified.
func HandleProductDeleteWebhook(cfg *config.Config, deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	const endpoint = "products/delete"
	return func(c *gin.Context) {
		body, shop, ok := verifiedWebhook(c, cfg, deps, endpoint, logger)
		if !ok {
			return
		}

		var payload shopify.DeletePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			rejectPayload(c, deps, endpoint, shop, "Invalid JSON payload")
			return
		}
		if payload.ID == "" {
			rejectPayload(c, deps, endpoint, shop, "Missing product ID")
			return
		}

		// the service has already tracked and logged the failure
		if err := deps.Sync.ProcessProductDeleteWebhook(c.Request.Context(), shop, payload); err != nil {
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"message": "Product delete failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Product deleted successfully",
		})
	}
}

// HandleInventoryWebhook handles POST /api/webhooks/inventory/update
func HandleInventoryWebhook(cfg *config.Config, deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	const endpoint = "inventory/update"
	return func(c *gin.Context) {
		body, shop, ok := verifiedWebhook(c, cfg, deps, endpoint, logger)
		if !ok {
			return
		}

		var level shopify.InventoryLevelPayload
		if err := json.Unmarshal(body, &level); err != nil {
			rejectPayload(c, deps, endpoint, shop, "Invalid JSON payload")
			return
		}
		if level.InventoryItemID == "" {
			rejectPayload(c, deps, endpoint, shop, "Missing inventory item ID")
			return
		}

		jobID, err := deps.Sync.QueueInventorySync(shop, deps.Sync.ShopToken(c.Request.Context(), shop), level)
		if err != nil {
			deps.Errors.Track(c.Request.Context(), err, monitoring.SeverityHigh, map[string]any{"endpoint": endpoint, "shopDomain": shop})
			respondError(c, err, logger)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Inventory update queued successfully",
			"jobId":   jobID,
		})
	}
}

// HandleAppUninstalledWebhook handles POST /api/webhooks/app/uninstalled.
// The shop is kept but deactivated, so a reinstall keeps its history.
func HandleAppUninstalledWebhook(cfg *config.Config, deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	const endpoint = "app/uninstalled"
	return func(c *gin.Context) {
		_, shop, ok := verifiedWebhook(c, cfg, deps, endpoint, logger)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		found, err := deps.Repos.Shop.Deactivate(ctx, shop)
		if err != nil {
			deps.Errors.Track(ctx, err, monitoring.SeverityHigh, map[string]any{"endpoint": endpoint, "shopDomain": shop})
			respondError(c, err, logger)
			return
		}

		message := "Shop not found"
		if found {
			message = "App uninstalled successfully"
			logger.Info("App uninstalled", zap.String("shop", shop))
			deps.Errors.TrackMessage(ctx, "App uninstalled", "app_uninstalled", monitoring.SeverityLow, map[string]any{"shopDomain": shop})
			if err := deps.Events.Publish(ctx, events.Event{ShopDomain: shop, Type: events.AppUninstalled, Timestamp: time.Now().UTC()}); err != nil {
				logger.Warn("Failed to publish sync event", zap.String("shop", shop), zap.String("type", events.AppUninstalled), zap.Error(err))
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": found,
			"message": message,
		})
	}
}
