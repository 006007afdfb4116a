package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jafarshop/shopsync/internal/monitoring"
)

const defaultAlertLimit = 50

type clientMetric struct {
	Name  string            `json:"name"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags"`
}

type clientAlert struct {
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context"`
}

// HandleGetMetrics handles GET /api/metrics
func HandleGetMetrics(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"metrics":        deps.Metrics.Snapshot(),
			"circuitBreaker": deps.Sync.Breaker().Snapshot(),
			"jobs":           deps.Sync.Tracker().Counts(),
			"queueLength":    deps.Sync.QueueLength(),
			"errors":         deps.Errors.CountBySeverity(),
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// HandleRecordMetrics handles POST /api/metrics, where the embedded app reports its own samples
func HandleRecordMetrics(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Metrics []clientMetric `json:"metrics"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error()})
			return
		}

		processed := 0
		for _, m := range req.Metrics {
			name := strings.TrimSpace(m.Name)
			if name == "" {
				continue
			}
			deps.Metrics.Track(name, m.Value, m.Tags)
			processed++
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "processed": processed})
	}
}

// HandleListAlerts handles GET /api/alerts?limit=
func HandleListAlerts(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultAlertLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		c.JSON(http.StatusOK, gin.H{
			"alerts": deps.Errors.Recent(limit),
			"counts": deps.Errors.CountBySeverity(),
		})
	}
}

// HandleRaiseAlert handles POST /api/alerts. Critical alerts reach Slack.
func HandleRaiseAlert(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req clientAlert
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON", "details": err.Error()})
			return
		}

		sev := monitoring.Severity(strings.ToLower(strings.TrimSpace(req.Severity)))
		switch sev {
		case monitoring.SeverityLow, monitoring.SeverityMedium, monitoring.SeverityHigh, monitoring.SeverityCritical:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be one of low, medium, high, critical"})
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
			return
		}

		tracked := deps.Errors.TrackMessage(c.Request.Context(), req.Message, "client_alert", sev, req.Context)
		c.JSON(http.StatusOK, gin.H{"success": true, "id": tracked.ID})
	}
}
