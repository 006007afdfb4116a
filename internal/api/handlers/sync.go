package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/service"
	"github.com/jafarshop/shopsync/internal/shopify"
)

const fullSyncEstimate = "5-15 minutes"

type fullSyncRequest struct {
	ShopDomain  string `json:"shopDomain"`
	AccessToken string `json:"accessToken"`
}

type incrementalSyncRequest struct {
	ShopDomain   string `json:"shopDomain"`
	AccessToken  string `json:"accessToken"`
	UpdatedAtMin string `json:"updatedAtMin"`
}

type bulkSyncRequest struct {
	ShopDomain  string            `json:"shopDomain"`
	AccessToken string            `json:"accessToken"`
	Products    []json.RawMessage `json:"products"`
	Metadata    map[string]any    `json:"metadata"`
}

// authorize validates shop and token of a sync request and answers 400 when
// they are unusable. It returns the normalized shop and the token to use.
func authorize(c *gin.Context, deps *Dependencies, endpoint, shopDomain, accessToken string, logger *zap.Logger) (string, string, bool) {
	shop := shopify.NormalizeShopDomain(shopDomain)
	token, err := deps.Sync.ValidateShopAuth(c.Request.Context(), shop, accessToken)
	if err != nil {
		logger.Warn("Sync request rejected",
			zap.String("endpoint", endpoint),
			zap.String("shop", shop),
			zap.String("reason", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return shop, token, true
}

// HandleFullSync handles POST /api/sync/full
func HandleFullSync(deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req fullSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error()})
			return
		}

		shop, token, ok := authorize(c, deps, "sync/full", req.ShopDomain, req.AccessToken, logger)
		if !ok {
			return
		}

		jobID, err := deps.Sync.QueueFullSync(shop, token)
		if err != nil {
			deps.Errors.Track(c.Request.Context(), err, monitoring.SeverityHigh, map[string]any{"endpoint": "sync/full", "shopDomain": shop})
			respondError(c, err, logger)
			return
		}

		logger.Info("Full sync queued", zap.String("job_id", jobID), zap.String("shop", shop))
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"message":           "Full sync initiated successfully",
			"jobId":             jobID,
			"shopDomain":        shop,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"estimatedDuration": fullSyncEstimate,
		})
	}
}

// HandleIncrementalSync handles POST /api/sync/incremental. Without
// updatedAtMin it covers the last 24 hours.
func HandleIncrementalSync(deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req incrementalSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error()})
			return
		}

		shop, token, ok := authorize(c, deps, "sync/incremental", req.ShopDomain, req.AccessToken, logger)
		if !ok {
			return
		}

		since := strings.TrimSpace(req.UpdatedAtMin)
		if since == "" {
			since = time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
		} else if _, err := time.Parse(time.RFC3339, since); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "updatedAtMin must be an RFC 3339 timestamp"})
			return
		}

		jobID, err := deps.Sync.QueueIncrementalSync(shop, token, since)
		if err != nil {
			deps.Errors.Track(c.Request.Context(), err, monitoring.SeverityHigh, map[string]any{"endpoint": "sync/incremental", "shopDomain": shop})
			respondError(c, err, logger)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      "Incremental sync queued",
			"jobId":        jobID,
			"shopDomain":   shop,
			"updatedAtMin": since,
		})
	}
}

// HandleBulkSync handles POST /api/sync/bulk. One invalid product rejects the
// whole request.
func HandleBulkSync(deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error()})
			return
		}

		shop, token, ok := authorize(c, deps, "sync/bulk", req.ShopDomain, req.AccessToken, logger)
		if !ok {
			return
		}

		valid, invalid, err := service.ValidateProducts(req.Products)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Product validation failed", "details": []string{err.Error()}})
			return
		}
		if len(invalid) > 0 {
			details := make([]string, 0, len(invalid))
			for _, p := range invalid {
				details = append(details, fmt.Sprintf("Product at index %d: %s", p.Index, strings.Join(p.Errors, ", ")))
			}
			deps.Errors.Track(c.Request.Context(), fmt.Errorf("product validation failed"), monitoring.SeverityMedium, map[string]any{
				"shopDomain":   shop,
				"invalidCount": len(invalid),
			})
			c.JSON(http.StatusBadRequest, gin.H{
				"error":           "Product validation failed",
				"details":         details,
				"invalidProducts": invalid,
			})
			return
		}

		meta := map[string]any{"userAgent": c.Request.UserAgent()}
		for k, v := range req.Metadata {
			meta[k] = v
		}
		plan, err := deps.Sync.QueueBulkSync(shop, token, valid, meta)
		if err != nil {
			deps.Errors.Track(c.Request.Context(), err, monitoring.SeverityHigh, map[string]any{"endpoint": "sync/bulk", "shopDomain": shop})
			respondError(c, err, logger)
			return
		}

		logger.Info("Bulk sync queued",
			zap.String("job_id", plan.JobID),
			zap.String("shop", shop),
			zap.Int("products", plan.ProductCount),
			zap.Int("batches", plan.BatchCount),
		)
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"message":           fmt.Sprintf("Bulk sync initiated for %d products", plan.ProductCount),
			"jobId":             plan.JobID,
			"shopDomain":        shop,
			"productCount":      plan.ProductCount,
			"batchCount":        plan.BatchCount,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
			"estimatedDuration": plan.EstimatedDuration,
		})
	}
}

// HandleJobStatus handles GET /api/sync/status/:jobId
func HandleJobStatus(deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := deps.Sync.JobStatus(c.Param("jobId"))
		if err != nil {
			respondError(c, err, logger)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// HandleSyncStatus handles GET /api/sync/status?shopDomain=
func HandleSyncStatus(deps *Dependencies, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		shop := shopify.NormalizeShopDomain(c.Query("shopDomain"))
		if shop == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing shopDomain parameter"})
			return
		}

		status, err := deps.Sync.SyncStatus(c.Request.Context(), shop)
		if err != nil {
			respondError(c, err, logger)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// HandleListJobs handles GET /api/sync/jobs?shopDomain=
func HandleListJobs(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		shop := shopify.NormalizeShopDomain(c.Query("shopDomain"))
		if shop == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing shopDomain parameter"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": deps.Sync.JobsByShop(shop)})
	}
}
