package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/shared/metrics"
)

// Metrics records Prometheus request counters and latency per route.
// The route template (not the raw path) is used to bound cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
