package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/shared/telemetry"
)

// contextLogFields maps gin context keys set by handlers to their log
// field names. Only keys with a value end up in the log line.
var contextLogFields = map[string]string{
	userIDKey:          "user_id",
	orgIDKey:           "org_id",
	"contractId":       "contract_id",
	"analysisId":       "analysis_id",
	"statusTransition": "status_transition",
}

// Logging emits one structured line per request. OPTIONS preflights are
// skipped to keep CORS noise out of the logs.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		for key, field := range contextLogFields {
			if v := c.GetString(key); v != "" {
				fields[field] = v
			}
		}
		telemetry.Info("request.complete", fields)
	}
}
