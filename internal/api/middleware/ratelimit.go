package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/shopsync/internal/monitoring"
	"github.com/jafarshop/shopsync/internal/ratelimit"
)

// RateLimitMiddleware counts every request against limiter, keyed by keyFn.
// A limiter error lets the request through.
func RateLimitMiddleware(name string, limiter ratelimit.Limiter, keyFn func(*http.Request) string, tracker *monitoring.ErrorTracker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c.Request)

		res, err := limiter.Limit(c.Request.Context(), key)
		if err != nil {
			logger.Error("Rate limiter failed", zap.String("type", name), zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limiter.Max()))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
		h.Set("X-RateLimit-Type", name)

		if res.Limited {
			retryAfter := int(math.Ceil(time.Until(res.ResetTime).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			h.Set("Retry-After", strconv.Itoa(retryAfter))

			tracker.Track(context.WithoutCancel(c.Request.Context()),
				fmt.Errorf("rate limit exceeded for %s", c.Request.URL.Path),
				monitoring.SeverityMedium,
				map[string]any{
					"path":      c.Request.URL.Path,
					"key":       key,
					"userAgent": c.Request.UserAgent(),
				},
			)
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			c.Abort()
			return
		}

		c.Next()
	}
}
