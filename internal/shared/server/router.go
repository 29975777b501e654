package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvscanner-backend/internal/resumes"
	"cvscanner-backend/internal/services/health"
	"cvscanner-backend/internal/shared/config"
	"cvscanner-backend/internal/shared/metrics"
	"cvscanner-backend/internal/shared/server/middleware"
	"cvscanner-backend/internal/shared/server/respond"
)

const uploadRateGroup = "UPLOAD"

// RouterDeps holds handler dependencies for routing.
type RouterDeps struct {
	Config        config.Config
	ResumeHandler *resumes.Handler
	Health        *health.Service
	Limiter       *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	rules := map[string]middleware.RateLimitRule{}
	if deps.Config.UploadsPerMinute > 0 {
		rules[uploadRateGroup] = middleware.PerMinute(deps.Config.UploadsPerMinute)
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rules,
			GroupFor: rateGroup,
			Limiter:  deps.Limiter,
		}),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	api.GET("/metrics", metrics.Handler())

	if deps.ResumeHandler != nil {
		deps.ResumeHandler.RegisterRoutes(api)
	}

	return r
}

// rateGroup throttles the calls that reach OCR or the AI provider.
func rateGroup(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return ""
	}
	switch c.FullPath() {
	case "/api/v1/resumes/upload", "/api/v1/resumes/:id/analyze", "/api/v1/documents/generate":
		return uploadRateGroup
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
