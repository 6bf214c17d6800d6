// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"opname/internal/core/security"
	"opname/internal/domain/reconciliation"
	"opname/internal/infrastructure/http/v1/handlers"
	"opname/internal/infrastructure/http/v1/middleware"
	"opname/internal/infrastructure/storage/postgres"
	"opname/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// Reconciliation is the stock check service.
	Reconciliation *reconciliation.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()
	submissionHandler := handlers.NewSubmissionHandler(base, cfg.Reconciliation)

	// API v1 - everything behind JWT auth; each route additionally
	// requires the capability its operation maps to.
	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(cfg.JWTValidator))
	{
		submissions := protected.Group("/submissions")
		{
			submissions.POST("",
				middleware.RequireCapability(security.CapSubmissionCreate),
				submissionHandler.Create)

			submissions.GET("",
				middleware.RequireCapability(security.CapSubmissionRead),
				submissionHandler.List)
			submissions.GET("/:id",
				middleware.RequireCapability(security.CapSubmissionRead),
				submissionHandler.Get)
			submissions.GET("/:id/lines",
				middleware.RequireCapability(security.CapSubmissionRead),
				submissionHandler.GetDetail)
			submissions.GET("/:id/lines/:itemCode",
				middleware.RequireCapability(security.CapSubmissionRead),
				submissionHandler.GetLine)

			submissions.PUT("/:id/lines",
				middleware.RequireCapability(security.CapSubmissionCount),
				submissionHandler.UpdateLines)
			submissions.PUT("/:id/lines/:itemCode",
				middleware.RequireCapability(security.CapSubmissionCount),
				submissionHandler.UpdateLine)

			submissions.PUT("/:id/status",
				middleware.RequireCapability(security.CapSubmissionReview),
				submissionHandler.UpdateStatus)
		}
	}

	return router
}
