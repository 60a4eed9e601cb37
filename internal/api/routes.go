package api

import (
	"github.com/gin-gonic/gin"

	"github.com/halcyonos/halcyon/internal/api/handlers"
	"github.com/halcyonos/halcyon/internal/api/middleware"
	"github.com/halcyonos/halcyon/internal/backup"
	"github.com/halcyonos/halcyon/internal/config"
	"github.com/halcyonos/halcyon/internal/manifest"
	"github.com/halcyonos/halcyon/internal/notifications"
	"github.com/halcyonos/halcyon/internal/packages"
)

// SetupRouter configures and returns the HTTP router
func SetupRouter(
	cfg *config.Config,
	orchestrator *backup.Orchestrator,
	manifests *manifest.Source,
	pkgs *packages.Store,
	notifier *notifications.Manager,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Initialize handlers
	backupHandler := handlers.NewBackupHandler(orchestrator, manifests, pkgs, notifier)
	notificationHandler := handlers.NewNotificationHandler(notifier)

	v1 := router.Group("/api/v1")
	{
		backupHandler.RegisterRoutes(v1)
		notificationHandler.RegisterRoutes(v1)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}
