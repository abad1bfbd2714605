package http

import (
	"github.com/adbroll/matcher/config"
	"github.com/adbroll/matcher/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler.SetMaxUploadBytes(cfg.Server.MaxUploadBytes)

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	router.Use(MetricsMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	if cfg.Auth.JWTSecret != "" {
		v1.Use(AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.AllowedRoles))
	}
	{
		match := v1.Group("/match")
		{
			match.POST("/batch", handler.MatchBatch)
			match.POST("/smart", handler.MatchSmart)
			match.POST("/rebuild", handler.Rebuild)
			match.POST("/reset", handler.ResetAttempts)
		}

		v1.POST("/videos/:id/link", handler.LinkVideo)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", handler.EnqueueJob)
			jobs.GET("/:id", handler.GetJob)
		}

		v1.POST("/products/import", handler.ImportProducts)
	}

	return router
}
