// Package main provides the recompute worker entry point.
// It rebuilds analytics snapshots for one user or for every user with trades,
// either once or on a fixed interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trade-analytics/internal/config"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/service"
	"github.com/trade-analytics/internal/storage"
	"github.com/trade-analytics/internal/types"
)

func main() {
	var (
		userID   = flag.String("user", "", "Recompute a single user (default: every user with trades)")
		interval = flag.Duration("interval", 0, "Repeat on this interval instead of running once")
	)
	flag.Parse()

	fmt.Println("Analytics Recompute Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)
	logger := logging.GetGlobalLogger().WithComponent("recompute_worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to databases
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	tradeRepo := storage.NewTradeRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(postgres)
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)

	engine := service.NewAnalyticsEngine(
		tradeRepo,
		snapshotRepo,
		cacheService,
		service.NewRedisNotifier(redis, cfg.Notify.Channel),
		logger,
	)

	run := func() {
		users := []string{*userID}
		if *userID == "" {
			users, err = tradeRepo.ListUserIDs(ctx)
			if err != nil {
				logger.WithError(err).Error("Failed to list users")
				return
			}
		}
		recomputeUsers(ctx, engine, users, logger)
	}

	if *interval <= 0 {
		run()
		return
	}

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()

		run()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()

	logger.WithField("interval", interval.String()).Info("Recompute scheduler started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down recompute worker...")
	cancel()
	logger.Info("Worker stopped")
}

// recomputeUsers runs the engine for each user and logs a summary.
// A failure for one user does not stop the others.
func recomputeUsers(ctx context.Context, engine *service.AnalyticsEngine, users []string, logger *logging.Logger) {
	counts := make(map[types.RecomputeOutcome]int)
	failed := 0

	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}

		result, err := engine.Recompute(ctx, userID)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Error("Recompute rejected")
			failed++
			continue
		}
		if result.Err != nil {
			failed++
		}
		counts[result.Outcome]++
	}

	logger.WithFields(map[string]interface{}{
		"users":       len(users),
		"replaced":    counts[types.OutcomeReplaced],
		"preserved":   counts[types.OutcomePreserved],
		"initialized": counts[types.OutcomeInitialized],
		"failed":      failed,
	}).Info("Recompute pass complete")
}
