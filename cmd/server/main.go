// Package main provides the API server entry point for the trade analytics service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trade-analytics/internal/api"
	"github.com/trade-analytics/internal/circuitbreaker"
	"github.com/trade-analytics/internal/config"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/normalize"
	"github.com/trade-analytics/internal/retry"
	"github.com/trade-analytics/internal/service"
	"github.com/trade-analytics/internal/storage"
)

func main() {
	fmt.Println("Trade Analytics API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx := context.Background()

	// Initialize database connections
	logger.Info("Connecting to databases...")

	// Databases may still be starting alongside the server
	startupCtx := logging.WithLogger(ctx, logger)

	var postgres *storage.PostgresDB
	err = retry.Do(startupCtx, retry.DefaultRetryConfig(), func(ctx context.Context, attempt int) error {
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	var redis *storage.RedisCache
	err = retry.Do(startupCtx, retry.DefaultRetryConfig(), func(ctx context.Context, attempt int) error {
		redis, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	healthChecks := map[string]api.HealthChecker{
		"postgres": postgres,
		"redis":    redis,
	}

	// The import audit log is optional
	var audit service.ImportAuditLog
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
		audit = storage.NewImportAuditRepository(clickhouse)
		healthChecks["clickhouse"] = clickhouse
	} else {
		logger.Info("ClickHouse disabled - import audit log is off")
	}

	logger.Info("Database connections established")

	// Initialize repositories
	accountRepo := storage.NewAccountRepository(postgres)
	tradeRepo := storage.NewTradeRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(postgres)

	// Initialize cache service. Reads and notifications fail fast while Redis is down.
	redisBreaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("redis"), logger)
	cacheService := service.NewGuardedCache(storage.NewCacheService(redis, cfg.Cache.TTL), redisBreaker)

	// Initialize services
	logger.Info("Initializing services...")

	notifier := service.NewGuardedNotifier(service.NewRedisNotifier(redis, cfg.Notify.Channel), redisBreaker)
	engine := service.NewAnalyticsEngine(tradeRepo, snapshotRepo, cacheService, notifier, logger)
	trigger := service.NewRecomputeTrigger(engine, logger)

	writer := service.NewTradeWriter(tradeRepo, service.TradeWriterConfig{
		ShortConvention: cfg.Ingest.ShortPnLConvention,
		AbsTolerance:    cfg.Ingest.PnLAbsTolerance,
		RelTolerance:    cfg.Ingest.PnLRelTolerance,
	}, logger)
	resolver := service.NewAccountResolver(accountRepo, cfg.Ingest.DefaultBroker, logger)
	normalizer := normalize.NewNormalizer(normalize.DefaultFieldMap(), normalize.SystemClock)

	importService := service.NewImportService(normalizer, resolver, writer, trigger, audit, service.ImportServiceConfig{
		MaxBatchRows:  cfg.Ingest.MaxBatchRows,
		DefaultBroker: cfg.Ingest.DefaultBroker,
	}, logger)

	services := api.Services{
		Imports:   importService,
		Analytics: service.NewAnalyticsService(snapshotRepo, cacheService, logger),
		Recompute: engine,
		Accounts:  service.NewAccountService(accountRepo, logger),
		Trades:    service.NewTradeService(tradeRepo, writer, trigger, logger),
	}

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		MaxBodyBytes:      32 << 20,
	}

	server := api.NewServer(serverConfig, services, healthChecks, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
