package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/cache"
	"github.com/jafarshop/shopsync/internal/shopify"
)

// WebhookIDHeader is the delivery id Shopify repeats on every retry of a webhook
const WebhookIDHeader = "X-Shopify-Webhook-Id"

// webhookSeenTTL outlasts Shopify's 48h retry schedule.
const webhookSeenTTL = 48 * time.Hour

// WebhookIdempotencyMiddleware acknowledges redeliveries of a webhook that was
// already accepted, without running the handler again. Only a correctly signed
// delivery is looked up; anything else goes to the handler, which rejects it.
// A delivery is only remembered once the handler answered 2xx, so rejected or
// failed deliveries can be retried.
func WebhookIdempotencyMiddleware(secret string, store cache.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		webhookID := strings.TrimSpace(c.GetHeader(WebhookIDHeader))
		if webhookID == "" || c.Request.Method != http.MethodPost || secret == "" {
			c.Next()
			return
		}

		// the handler reads the body again for its own checks
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, shopify.MaxWebhookBody))
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil || !shopify.ValidateWebhook(body, c.GetHeader("X-Shopify-Hmac-Sha256"), secret) {
			c.Next()
			return
		}

		key := "webhook-" + webhookID
		_, seen, err := store.Get(c.Request.Context(), key)
		if err != nil {
			logger.Error("Failed to check webhook id", zap.String("webhook_id", webhookID), zap.Error(err))
			c.Next()
			return
		}
		if seen {
			logger.Info("Duplicate webhook ignored",
				zap.String("webhook_id", webhookID),
				zap.String("topic", c.GetHeader("X-Shopify-Topic")),
			)
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "Duplicate webhook ignored"})
			c.Abort()
			return
		}

		c.Next()

		if status := c.Writer.Status(); status >= 200 && status < 300 {
			if err := store.Set(c.Request.Context(), key, []byte(c.Request.URL.Path), webhookSeenTTL); err != nil {
				logger.Error("Failed to remember webhook id", zap.String("webhook_id", webhookID), zap.Error(err))
			}
		}
	}
}
