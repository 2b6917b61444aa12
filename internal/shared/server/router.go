package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"contracts-backend/internal/analysis"
	googleauth "contracts-backend/internal/auth"
	"contracts-backend/internal/billing"
	"contracts-backend/internal/contracts"
	"contracts-backend/internal/dashboard"
	"contracts-backend/internal/exports"
	"contracts-backend/internal/notifications"
	"contracts-backend/internal/organizations"
	"contracts-backend/internal/shared/config"
	"contracts-backend/internal/shared/metrics"
	"contracts-backend/internal/shared/server/middleware"
	"contracts-backend/internal/shared/server/respond"
	"contracts-backend/internal/usage"
	"contracts-backend/internal/users"
)

// RouterDeps carries the handlers the router mounts. Roles resolves user
// roles for admin-gated routes.
type RouterDeps struct {
	Config config.Config
	Roles  middleware.RoleResolver

	GoogleAuth           *googleauth.GoogleService
	ContractsHandler     *contracts.Handler
	AnalysisHandler      *analysis.Handler
	UsageHandler         *usage.Handler
	UsersHandler         *users.Handler
	OrganizationsHandler *organizations.Handler
	NotificationsHandler *notifications.Handler
	BillingHandler       *billing.Handler
	ExportsHandler       *exports.Handler
	DashboardHandler     *dashboard.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Metrics(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(deps.Config.Env))
	api.Use(middleware.RateLimit(rateLimits()))

	requireAdmin := middleware.RequireAdmin(deps.Roles)

	deps.GoogleAuth.RegisterRoutes(api)
	deps.UsersHandler.RegisterRoutes(api)
	deps.ContractsHandler.RegisterRoutes(api)
	deps.AnalysisHandler.RegisterRoutes(api, requireAdmin)
	deps.UsageHandler.RegisterRoutes(api)
	deps.OrganizationsHandler.RegisterRoutes(api)
	deps.NotificationsHandler.RegisterRoutes(api)
	deps.ExportsHandler.RegisterRoutes(api)
	deps.DashboardHandler.RegisterRoutes(api)
	if deps.BillingHandler != nil {
		deps.BillingHandler.RegisterRoutes(api)
	}

	return r
}

// rateLimits buckets status polling separately so dashboards refreshing
// job state do not starve uploads and mutations.
func rateLimits() middleware.RateLimitConfig {
	pollingPaths := map[string]bool{
		"/api/v1/analysis/:id/status":   true,
		"/api/v1/analysis/queue/status": true,
		"/api/v1/analysis/batch/status": true,
		"/api/v1/notifications":         true,
	}
	return middleware.RateLimitConfig{
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet && pollingPaths[c.FullPath()] {
				return "POLLING"
			}
			return "DEFAULT"
		},
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": {Rate: 5, Burst: 20},
			"POLLING": {Rate: 20, Burst: 60},
		},
	}
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
