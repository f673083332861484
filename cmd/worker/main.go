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

	dockerclient "github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/client"
	"github.com/Harsh-BH/sentinel-judge/internal/config"
	amqpdelivery "github.com/Harsh-BH/sentinel-judge/internal/delivery/amqp"
	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/pool"
	"github.com/Harsh-BH/sentinel-judge/internal/ranking"
	redisrepo "github.com/Harsh-BH/sentinel-judge/internal/repository/redis"
	"github.com/Harsh-BH/sentinel-judge/internal/sandbox"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
	"github.com/Harsh-BH/sentinel-judge/internal/verdict"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting judge evaluation worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Redis
	redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", zap.Error(err))
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	registry := sandbox.NewRegistry(
		sandbox.PythonProfile(cfg.Sandbox.Python.Image, cfg.Sandbox.Python.TimeLimit(), cfg.Sandbox.Python.MemoryLimitBytes()),
		sandbox.CppProfile(cfg.Sandbox.Cpp.Image, cfg.Sandbox.Cpp.TimeLimit(), cfg.Sandbox.Cpp.MemoryLimitBytes()),
	)

	var runner sandbox.Runner
	switch cfg.Sandbox.Backend {
	case "nsjail":
		runner = sandbox.NewNsjailRunner(cfg.Sandbox.NsjailPath, cfg.Sandbox.NsjailConfigDir, registry, logger)
		logger.Info("Using nsjail sandbox", zap.String("path", cfg.Sandbox.NsjailPath))
	default:
		docker, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			logger.Fatal("Failed to create Docker client", zap.Error(err))
		}
		defer docker.Close()
		if _, err := docker.Ping(ctx); err != nil {
			logger.Fatal("Failed to reach Docker daemon", zap.Error(err))
		}

		dockerRunner := sandbox.NewDockerRunner(docker, registry, logger)
		if cfg.Sandbox.PullImages {
			if err := dockerRunner.EnsureImages(ctx); err != nil {
				logger.Fatal("Failed to pull sandbox images", zap.Error(err))
			}
		}
		go dockerRunner.RunReaper(ctx, cfg.Sandbox.ReapInterval)
		runner = dockerRunner
		logger.Info("Using Docker sandbox")
	}

	aggregator := verdict.NewAggregator(runner, registry, cfg.Worker.FanoutPerJob, cfg.Worker.FanoutGlobal, logger)

	retry := client.RetryPolicy{
		MaxRetries:     cfg.Delivery.MaxRetries,
		InitialBackoff: cfg.Delivery.InitialBackoff,
		MaxBackoff:     cfg.Delivery.MaxBackoff,
	}
	deliverer := client.NewSubmissionClient(cfg.Services.SubmissionURL, cfg.Services.InternalToken, &http.Client{Timeout: cfg.Services.HTTPTimeout}, retry, logger)

	evaluateUC := usecase.NewEvaluateSubmissionUsecase(
		redisrepo.NewRedisIdempotencyStore(redisClient),
		aggregator,
		deliverer,
		ranking.NewEngine(redisClient, logger),
		retry,
		redisrepo.LockTTL/3,
		logger,
	)

	jobsChan := make(chan *domain.JobMessage, cfg.Worker.PoolSize)

	// Prefetch matches the pool so no job sits unacked in a local buffer for long.
	consumer, err := amqpdelivery.NewConsumer(cfg.RabbitMQ.URL, cfg.Worker.PoolSize, cfg.Worker.DeliveryLimit, jobsChan, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AMQP consumer", zap.Error(err))
	}
	defer consumer.Close()
	logger.Info("Connected to RabbitMQ")

	workerPool := pool.NewWorkerPool(cfg.Worker.PoolSize, jobsChan, evaluateUC, pool.RetryPolicy{
		MaxAttempts: cfg.Worker.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Worker.RetryBaseMs) * time.Millisecond,
		MaxBackoff:  time.Duration(cfg.Worker.RetryMaxMs) * time.Millisecond,
		LockWait:    redisrepo.LockTTL,
	}, logger)
	workerPool.Start(ctx)

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("AMQP consumer error", zap.Error(err))
			cancel()
		}
	}()

	metricsAddr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", metricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down worker...")
	cancel()

	// In-flight jobs finish before their messages are settled.
	workerPool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("Worker stopped")
}
