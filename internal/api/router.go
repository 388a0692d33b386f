package api

import (
	"github.com/gin-gonic/gin"
	"github.com/otavio/clientsync/internal/api/handler"
	"github.com/otavio/clientsync/internal/api/middleware"
	"github.com/otavio/clientsync/internal/config"
	"github.com/otavio/clientsync/internal/logger"
	"github.com/otavio/clientsync/internal/repository"
	"github.com/otavio/clientsync/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	admission *service.AdmissionService,
	syncService *service.SyncService,
	tenants *repository.TenantRepository,
	cfg *config.Config,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobHandler := handler.NewJobHandler(admission)
	feedHandler := handler.NewFeedHandler(admission, &handler.FeedConfig{
		PollInterval: cfg.Feed.PollInterval,
		MaxDuration:  cfg.Feed.MaxDuration,
	})
	syncHandler := handler.NewSyncHandler(syncService, tenants)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Import jobs
		v1.POST("/tenants/:tenantID/imports", jobHandler.Enqueue)
		v1.GET("/tenants/:tenantID/imports/position", jobHandler.Position)
		v1.GET("/imports/:id", jobHandler.Get)
		v1.DELETE("/imports/:id", jobHandler.Cancel)

		// Live progress feed
		v1.GET("/imports/:id/feed", feedHandler.Stream)

		// Incremental sync
		v1.POST("/sync/run", syncHandler.RunAll)
		v1.POST("/tenants/:tenantID/sync", syncHandler.RunTenant)
	}

	return r
}
