package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/delivery/http/middleware"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

// RouterDeps is everything the HTTP surface needs.
type RouterDeps struct {
	SubmitUC      *usecase.SubmitSubmissionUsecase
	GetUC         *usecase.GetSubmissionUsecase
	UpdateUC      *usecase.UpdateStatusUsecase
	ListUC        *usecase.ListSubmissionsUsecase
	DeleteUC      *usecase.DeleteSubmissionUsecase
	LeaderboardUC *usecase.GetLeaderboardUsecase
	Languages     LanguageLister
	HealthChecks  map[string]Checker

	RateLimitPerMin int
	MaxBodyBytes    int64
	// ServiceToken guards the routes only internal callers may use.
	ServiceToken string
	Logger       *zap.Logger
}

// NewRouter creates and configures the Gin router with all routes and
// middleware. ctx bounds background middleware goroutines.
func NewRouter(ctx context.Context, deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(deps.HealthChecks, logger)
		v1.GET("/health", healthHandler.Health)

		langHandler := NewLanguageHandler(deps.Languages)
		v1.GET("/languages", langHandler.List)

		subHandler := NewSubmissionHandler(deps.SubmitUC, deps.GetUC, deps.UpdateUC, deps.ListUC, deps.DeleteUC, logger)
		v1.POST("/submissions",
			middleware.RateLimiter(ctx, deps.RateLimitPerMin),
			middleware.BodySizeLimit(deps.MaxBodyBytes),
			subHandler.Submit,
		)
		v1.GET("/submissions", subHandler.List)
		v1.GET("/submissions/:id", subHandler.GetByID)

		internal := v1.Group("", middleware.ServiceToken(deps.ServiceToken))
		internal.PATCH("/submissions/:id/status", middleware.BodySizeLimit(deps.MaxBodyBytes), subHandler.UpdateStatus)
		internal.DELETE("/submissions/:id", subHandler.Delete)

		wsHandler := NewWebSocketHandler(deps.GetUC, logger)
		v1.GET("/submissions/:id/stream", wsHandler.Stream)

		boardHandler := NewLeaderboardHandler(deps.LeaderboardUC, logger)
		v1.GET("/leaderboard/:type", boardHandler.Get)
	}

	return router
}
