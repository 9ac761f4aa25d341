package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/tagdrop/internal/bot"
	"github.com/maneesh/tagdrop/internal/config"
	"github.com/maneesh/tagdrop/internal/delivery"
	"github.com/maneesh/tagdrop/internal/handlers"
	"github.com/maneesh/tagdrop/internal/logging"
	"github.com/maneesh/tagdrop/internal/quota"
	"github.com/maneesh/tagdrop/internal/search"
	"github.com/maneesh/tagdrop/internal/selection"
	"github.com/maneesh/tagdrop/internal/storage"
	"github.com/maneesh/tagdrop/internal/tracing"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting TagDrop service",
		zap.String("port", cfg.ServicePort),
		zap.Int("daily_limit", cfg.DailyLimit),
		zap.String("quota_backend", cfg.QuotaBackend),
		zap.Int("admins", len(cfg.AdminIDs)),
	)

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName, cfg.JaegerEndpoint, cfg.TracingEnabled, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	// Initialize MinIO client
	logger.Info("Connecting to MinIO...", zap.String("endpoint", cfg.MinIOEndpoint))
	minioClient, err := storage.NewMinioClient(
		cfg.MinIOEndpoint,
		cfg.MinIOAccessKey,
		cfg.MinIOSecretKey,
		cfg.MinIOBucketName,
		cfg.MinIOUseSSL,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize MinIO client", zap.Error(err))
	}

	// Apply schema and initialize TiDB client
	logger.Info("Migrating TiDB schema...")
	if err := storage.Migrate(cfg.GetMigrationDSN(), logger); err != nil {
		logger.Fatal("Failed to migrate TiDB schema", zap.Error(err))
	}

	tidbClient, err := storage.NewTiDBClient(cfg.GetDSN())
	if err != nil {
		logger.Fatal("Failed to initialize TiDB client", zap.Error(err))
	}
	defer tidbClient.Close()

	// Initialize Redis client
	logger.Info("Connecting to Redis...", zap.String("addr", cfg.GetRedisAddr()))
	redisClient, err := storage.NewRedisClient(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("Failed to initialize Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	// Core components
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid quota timezone", zap.Error(err))
	}

	var counter quota.Counter = tidbClient
	if cfg.QuotaBackend == config.QuotaBackendRedis {
		counter = redisClient.QuotaCounter(cfg.QuotaRetention)
	}

	transport := delivery.NewOutboxTransport(minioClient, redisClient, cfg.DeliveryLinkTTL, cfg.OutboxTTL, logger)

	orchestrator := bot.NewOrchestrator(bot.Deps{
		Search:     search.NewEngine(tidbClient, logger),
		Quota:      quota.NewTracker(counter, loc),
		Selections: selection.NewCache(cfg.SelectionTTL),
		Files:      tidbClient,
		Cache:      redisClient,
		Transport:  transport,
	}, bot.Settings{
		DailyLimit: cfg.DailyLimit,
		PageSize:   cfg.ResultsPerPage,
		AdminIDs:   cfg.AdminIDs,
	}, logger)

	router := handlers.NewRouter(orchestrator, redisClient, map[string]handlers.Pinger{
		"tidb":  tidbClient,
		"redis": redisClient,
		"minio": minioClient,
	}, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.ServicePort,
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server listening", zap.String("port", cfg.ServicePort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
