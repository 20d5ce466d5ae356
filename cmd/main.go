package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/KasumiMercury/primind-bulk-operations/internal/config"
	"github.com/KasumiMercury/primind-bulk-operations/internal/handler"
	"github.com/KasumiMercury/primind-bulk-operations/internal/health"
	"github.com/KasumiMercury/primind-bulk-operations/internal/infra/auditrecorder"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/logging"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/metrics"
	"github.com/KasumiMercury/primind-bulk-operations/internal/observability/middleware"
	"github.com/KasumiMercury/primind-bulk-operations/internal/service/operation"
)

// Version is set via ldflags at build time
var Version = "dev"

const moduleName = logging.Module("bulk-operations")

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	obs, err := initObservability(ctx, cfg.LogLevel)
	if err != nil {
		slog.Error("failed to initialize observability", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", slog.String("error", err.Error()))
		}
	}()

	slog.SetDefault(obs.Logger())

	// Validate configuration
	if err := config.ValidateForRun(cfg); err != nil {
		slog.Error("configuration validation error", slog.String("error", err.Error()))
		return 1
	}

	httpMetrics, err := metrics.NewHTTPMetrics()
	if err != nil {
		slog.Error("failed to initialize HTTP metrics", slog.String("error", err.Error()))
		return 1
	}

	operationMetrics, err := metrics.NewOperationMetrics()
	if err != nil {
		slog.Error("failed to initialize operation metrics", slog.String("error", err.Error()))
		return 1
	}

	rateLimitMetrics, err := metrics.NewRateLimitMetrics()
	if err != nil {
		slog.Error("failed to initialize rate limit metrics", slog.String("error", err.Error()))
		return 1
	}

	var dependencies []health.Dependency

	redisClient, err := connectRedis(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect redis",
			slog.String("event", "redis.connect.fail"),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				slog.Warn("failed to close redis client", slog.String("error", err.Error()))
			}
		}()
		dependencies = append(dependencies, health.RedisDependency(redisClient))
	}

	store, err := openStore(ctx, cfg.Store, redisClient)
	if err != nil {
		slog.Error("failed to open operation store", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close operation store", slog.String("error", err.Error()))
		}
	}()
	if store.dependency != nil {
		dependencies = append(dependencies, *store.dependency)
	}

	gate, err := newRateGate(ctx, cfg.RateLimit, redisClient, rateLimitMetrics)
	if err != nil {
		slog.Error("failed to initialize rate gate", slog.String("error", err.Error()))
		return 1
	}

	appliers, err := newApplierRegistry(cfg.Applier)
	if err != nil {
		slog.Error("failed to initialize appliers", slog.String("error", err.Error()))
		return 1
	}

	// Initialize target audit recorder (InfluxDB for local, BigQuery for gcloud)
	auditRecorder, err := auditrecorder.NewRecorder(ctx, auditrecorder.LoadConfig())
	if err != nil {
		slog.Error("failed to initialize audit recorder", slog.String("error", err.Error()))
		return 1
	}
	defer func() {
		if err := auditRecorder.Close(); err != nil {
			slog.Warn("failed to close audit recorder", slog.String("error", err.Error()))
		}
	}()

	archiver, err := newArchiver(ctx, cfg.Archive)
	if err != nil {
		slog.Error("failed to initialize report archiver", slog.String("error", err.Error()))
		return 1
	}

	operationService := operation.NewService(
		operationConfig(cfg.Orchestrator),
		store.repo,
		appliers,
		gate,
		auditRecorder,
		archiver,
		operationMetrics,
	)

	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- operationService.Run(ctx)
	}()

	registry := metrics.NewRegistry(metrics.NewCollector(func() metrics.Snapshot {
		stats := operationService.Stats()
		return metrics.Snapshot{
			ActiveOperations: stats.ActiveOperations,
			QueuedOperations: stats.QueuedOperations,
			InFlightTargets:  stats.InFlightTargets,
			RateGateEntries:  gate.entries(),
		}
	}))

	// Setup router with observability middleware
	r := gin.New()
	r.Use(middleware.Gin(middleware.GinConfig{
		SkipPaths:   []string{"/health", "/health/live", "/health/ready", "/metrics"},
		Module:      moduleName,
		TracerName:  "github.com/KasumiMercury/primind-bulk-operations/internal/observability/middleware",
		HTTPMetrics: httpMetrics,
	}))
	r.Use(middleware.PanicRecoveryGin())

	// Health check endpoints
	healthChecker := health.NewChecker(Version, dependencies...)
	r.GET("/health/live", healthChecker.LiveHandler())
	r.GET("/health/ready", healthChecker.ReadyHandler())
	r.GET("/health", healthChecker.ReadyHandler())

	grpcHealthPath, grpcHealthHandler := healthChecker.GRPCHandler(string(moduleName))
	r.Any(grpcHealthPath+"*method", gin.WrapH(grpcHealthHandler))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	// API routes
	handler.NewOperationHandler(operationService).Register(r.Group("/api/v1"))

	// gRPC health clients speak HTTP/2 without TLS.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h2c.NewHandler(r, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			slog.String("port", cfg.Port),
			slog.String("store", string(cfg.Store.Driver)),
			slog.String("rate_limit_backend", string(cfg.RateLimit.Backend)),
			slog.Int("max_active_operations", cfg.Orchestrator.MaxActiveOperations),
			slog.Int("default_concurrency", cfg.Orchestrator.Concurrency),
		)
		serverErr <- srv.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown server", slog.String("error", err.Error()))
			return 1
		}

		// Running operations finish; queued ones stay pending for the next start.
		cancel()
		if err := <-dispatcherDone; err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("dispatcher exited with error", slog.String("error", err.Error()))
			return 1
		}

		slog.Info("server exited properly")
		return 0

	case err := <-dispatcherDone:
		slog.Error("dispatcher stopped unexpectedly", slog.Any("error", err))
		return 1

	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return 0
		}
		slog.Error("server exited with error", slog.String("error", err.Error()))
		return 1
	}
}

func operationConfig(c *config.OrchestratorConfig) operation.Config {
	return operation.Config{
		Concurrency:         c.Concurrency,
		MaxConcurrency:      c.MaxConcurrency,
		Retries:             c.Retries,
		MaxRetries:          c.MaxRetries,
		RetryDelay:          c.RetryDelay,
		OperationTimeout:    c.OperationTimeout,
		MaxTargets:          c.MaxTargets,
		MaxActiveOperations: c.MaxActiveOperations,
		QueueSize:           c.QueueSize,
	}
}
