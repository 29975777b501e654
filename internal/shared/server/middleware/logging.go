package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cvscanner-backend/internal/shared/telemetry"
)

// ResumeIDKey is set by handlers so the request log names the record touched.
const ResumeIDKey = "resumeId"

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if resumeID := c.GetString(ResumeIDKey); resumeID != "" {
			fields["resume_id"] = resumeID
		}
		if kind := c.GetString("errorKind"); kind != "" {
			fields["error_kind"] = kind
		}
		telemetry.Info("request.complete", fields)
	}
}
