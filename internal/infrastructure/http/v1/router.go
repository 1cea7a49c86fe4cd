// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"okrtrack/internal/core/policy"
	"okrtrack/internal/core/tenant"
	"okrtrack/internal/domain/goals"
	"okrtrack/internal/infrastructure/http/v1/handlers"
	"okrtrack/internal/infrastructure/http/v1/middleware"
	"okrtrack/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Users is read on every request to build the tenant scope.
	Users tenant.UserDirectory

	// Resolver serves /org/:slug routes.
	Resolver *tenant.Resolver

	Goals *goals.Service

	// Organizations backs the system-owner admin routes. ErrSlugTaken is
	// its duplicate-slug sentinel.
	Organizations handlers.OrganizationAdmin
	ErrSlugTaken  error

	// DB, Guard and Model feed the readiness probe.
	DB    handlers.Database
	Guard handlers.GuardStatter
	Model policy.Model

	CORSOrigins []string
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger, "/health/"))
	router.Use(middleware.ErrorHandler())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID, middleware.HeaderTraceID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health endpoints (no auth, no tenant context)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Guard, cfg.Model)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	base := handlers.NewBaseHandler()
	goalHandler := handlers.NewGoalHandler(base, cfg.Goals)
	orgHandler := handlers.NewOrganizationHandler(base, cfg.Organizations, cfg.ErrSlugTaken)

	// API v1. Anonymous requests get through and see no tenant rows.
	api := router.Group("/api/v1")
	api.Use(middleware.OptionalAuth(cfg.JWTValidator)) // 1. Identify the caller
	api.Use(middleware.TenantContext(cfg.Users))       // 2. Build the tenant scope
	{
		goalHandler.RegisterRoutes(api)

		org := api.Group("/org/:slug")
		org.Use(middleware.OrgScope(cfg.Resolver))
		org.GET("", orgHandler.Current)
		goalHandler.RegisterRoutes(org)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireSystemOwner())
		admin.GET("/organizations", orgHandler.List)
		admin.POST("/organizations", orgHandler.Create)
	}

	return router
}
