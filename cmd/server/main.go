package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/client"
	"github.com/Harsh-BH/sentinel-judge/internal/config"
	handler "github.com/Harsh-BH/sentinel-judge/internal/delivery/http"
	"github.com/Harsh-BH/sentinel-judge/internal/publisher"
	"github.com/Harsh-BH/sentinel-judge/internal/ranking"
	"github.com/Harsh-BH/sentinel-judge/internal/repository/postgres"
	"github.com/Harsh-BH/sentinel-judge/internal/sandbox"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting judge API server")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping PostgreSQL", zap.Error(err))
	}
	logger.Info("Connected to PostgreSQL")

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to ping Redis", zap.Error(err))
	}
	logger.Info("Connected to Redis")

	pub, err := publisher.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.Worker.DeliveryLimit, logger)
	if err != nil {
		logger.Fatal("Failed to initialize RabbitMQ publisher", zap.Error(err))
	}
	defer pub.Close()
	logger.Info("Connected to RabbitMQ")

	registry := sandbox.NewRegistry(
		sandbox.PythonProfile(cfg.Sandbox.Python.Image, cfg.Sandbox.Python.TimeLimit(), cfg.Sandbox.Python.MemoryLimitBytes()),
		sandbox.CppProfile(cfg.Sandbox.Cpp.Image, cfg.Sandbox.Cpp.TimeLimit(), cfg.Sandbox.Cpp.MemoryLimitBytes()),
	)

	submissionRepo := postgres.NewPostgresSubmissionRepository(dbPool)
	problems := client.NewProblemClient(cfg.Services.ProblemURL, &http.Client{Timeout: cfg.Services.HTTPTimeout}, logger)
	board := ranking.NewEngine(rdb, logger)

	router := handler.NewRouter(ctx, handler.RouterDeps{
		SubmitUC:      usecase.NewSubmitSubmissionUsecase(submissionRepo, problems, pub, registry, logger),
		GetUC:         usecase.NewGetSubmissionUsecase(submissionRepo, logger),
		UpdateUC:      usecase.NewUpdateStatusUsecase(submissionRepo, logger),
		ListUC:        usecase.NewListSubmissionsUsecase(submissionRepo),
		DeleteUC:      usecase.NewDeleteSubmissionUsecase(submissionRepo, logger),
		LeaderboardUC: usecase.NewGetLeaderboardUsecase(board, cfg.Leaderboard.DefaultLimit, cfg.Leaderboard.MaxLimit),
		Languages:     registry,
		HealthChecks: map[string]handler.Checker{
			"postgres": submissionRepo.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"rabbitmq": func(ctx context.Context) error {
				if !pub.Healthy() {
					return errors.New("publisher disconnected")
				}
				return nil
			},
		},
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		ServiceToken:    cfg.Services.InternalToken,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("API server stopped")
}
