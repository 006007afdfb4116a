package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/api/handlers"
	"github.com/jafarshop/shopsync/internal/api/middleware"
	"github.com/jafarshop/shopsync/internal/config"
	"github.com/jafarshop/shopsync/internal/ratelimit"
)

// Limiters hold one request budget per route group
type Limiters struct {
	API     ratelimit.Limiter
	Webhook ratelimit.Limiter
	OAuth   ratelimit.Limiter
	Install ratelimit.Limiter
}

// NewMemoryLimiters builds in-process limiters with the default budgets
func NewMemoryLimiters() Limiters {
	return Limiters{
		API:     ratelimit.NewMemoryLimiter(ratelimit.APIRule),
		Webhook: ratelimit.NewMemoryLimiter(ratelimit.WebhookRule),
		OAuth:   ratelimit.NewMemoryLimiter(ratelimit.OAuthRule),
		Install: ratelimit.NewMemoryLimiter(ratelimit.InstallRule),
	}
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps *handlers.Dependencies, limiters Limiters, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(customRecovery(logger))
	router.Use(loggingMiddleware(logger))
	router.Use(middleware.SecurityHeaders())

	limit := func(name string, l ratelimit.Limiter, key func(*http.Request) string) gin.HandlerFunc {
		return middleware.RateLimitMiddleware(name, l, key, deps.Errors, logger)
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "Shopify Sync API",
			"endpoints": []string{
				"GET /health",
				"POST /api/sync/full",
				"POST /api/sync/incremental",
				"POST /api/sync/bulk",
				"GET /api/sync/status",
				"GET /api/sync/status/:jobId",
				"GET /api/sync/jobs",
				"POST /api/webhooks/products/create",
				"POST /api/webhooks/products/update",
				"POST /api/webhooks/products/delete",
				"POST /api/webhooks/inventory/update",
				"POST /api/webhooks/app/uninstalled",
				"GET /api/shopify",
				"GET /api/metrics",
				"GET /api/alerts",
			},
		})
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		// Shopify webhooks: HMAC is checked per handler over the raw body
		webhooks := apiGroup.Group("/webhooks")
		webhooks.Use(limit("Webhook", limiters.Webhook, ratelimit.ShopKey))
		webhooks.Use(middleware.WebhookIdempotencyMiddleware(cfg.Shopify.WebhookSecret, deps.Cache, logger))
		{
			webhooks.POST("/products/create", handlers.HandleProductWebhook(cfg, deps, "create", logger))
			webhooks.POST("/products/update", handlers.HandleProductWebhook(cfg, deps, "update", logger))
			webhooks.POST("/products/delete", handlers.HandleProductDeleteWebhook(cfg, deps, logger))
			webhooks.POST("/inventory/update", handlers.HandleInventoryWebhook(cfg, deps, logger))
			webhooks.POST("/app/uninstalled", handlers.HandleAppUninstalledWebhook(cfg, deps, logger))
		}

		// App install (OAuth)
		apiGroup.GET("/shopify", limit("Install", limiters.Install, ratelimit.ClientKey), handlers.HandleInstall(cfg, deps, logger))
		apiGroup.GET("/shopify/callback", limit("OAuth", limiters.OAuth, ratelimit.ClientKey), handlers.HandleOAuthCallback(cfg, deps, logger))

		// Operator routes
		admin := apiGroup.Group("")
		admin.Use(limit("API", limiters.API, ratelimit.ClientKey))
		admin.Use(middleware.AdminAuthMiddleware(cfg.Security.AdminAPIKeyHash, logger))
		{
			admin.POST("/sync/full", handlers.HandleFullSync(deps, logger))
			admin.POST("/sync/incremental", handlers.HandleIncrementalSync(deps, logger))
			admin.POST("/sync/bulk", handlers.HandleBulkSync(deps, logger))
			admin.GET("/sync/status", handlers.HandleSyncStatus(deps, logger))
			admin.GET("/sync/status/:jobId", handlers.HandleJobStatus(deps, logger))
			admin.GET("/sync/jobs", handlers.HandleListJobs(deps))

			admin.GET("/metrics", handlers.HandleGetMetrics(deps))
			admin.POST("/metrics", handlers.HandleRecordMetrics(deps))
			admin.GET("/alerts", handlers.HandleListAlerts(deps))
			admin.POST("/alerts", handlers.HandleRaiseAlert(deps))
		}
	}

	return router
}

// customRecovery is a custom recovery middleware that logs panics. The panic
// value stays in the log, the client only gets a generic error.
func customRecovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.String("error", fmt.Sprintf("%v", recovered)),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
