// Package main provides a CLI tool for importing a broker export file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/trade-analytics/internal/config"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/normalize"
	"github.com/trade-analytics/internal/service"
	"github.com/trade-analytics/internal/storage"
)

func main() {
	var (
		file      = flag.String("file", "", "CSV or JSON export to import")
		userID    = flag.String("user", "", "Owner of the imported trades")
		accountID = flag.String("account", "", "Trading account id (default: the user's default account)")
		broker    = flag.String("broker", "", "Broker profile: generic, tradovate, topstepx")
	)
	flag.Parse()

	if *file == "" || *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger().WithComponent("import_cli")

	rows, err := readRows(*file)
	if err != nil {
		logger.WithError(err).WithField("file", *file).Fatal("Failed to read export")
	}

	ctx := context.Background()

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Redis is optional here; without it the snapshot cache and notifications are skipped
	var (
		cache    service.SnapshotCache
		notifier service.AnalyticsNotifier
	)
	redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable - skipping cache and notifications")
	} else {
		defer redis.Close()
		cache = storage.NewCacheService(redis, cfg.Cache.TTL)
		notifier = service.NewRedisNotifier(redis, cfg.Notify.Channel)
	}

	var audit service.ImportAuditLog
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()
		audit = storage.NewImportAuditRepository(clickhouse)
	}

	tradeRepo := storage.NewTradeRepository(postgres)
	engine := service.NewAnalyticsEngine(tradeRepo, storage.NewSnapshotRepository(postgres), cache, notifier, logger)

	importService := service.NewImportService(
		normalize.NewNormalizer(normalize.DefaultFieldMap(), normalize.SystemClock),
		service.NewAccountResolver(storage.NewAccountRepository(postgres), cfg.Ingest.DefaultBroker, logger),
		service.NewTradeWriter(tradeRepo, service.TradeWriterConfig{
			ShortConvention: cfg.Ingest.ShortPnLConvention,
			AbsTolerance:    cfg.Ingest.PnLAbsTolerance,
			RelTolerance:    cfg.Ingest.PnLRelTolerance,
		}, logger),
		service.NewRecomputeTrigger(engine, logger),
		audit,
		service.ImportServiceConfig{
			// a file import is not bound by the API batch limit
			MaxBatchRows:  len(rows),
			DefaultBroker: cfg.Ingest.DefaultBroker,
		},
		logger,
	)

	input := &service.ImportBatchInput{
		UserID: *userID,
		Broker: *broker,
		Rows:   rows,
	}
	if *accountID != "" {
		input.AccountID = accountID
	}

	result, err := importService.ImportBatch(ctx, input)
	if err != nil {
		logger.WithError(err).Fatal("Import failed")
	}

	for _, row := range result.PerRowResults {
		if !row.Success {
			fmt.Printf("%s: %s\n", row.RowRef, row.Error)
		}
	}

	out, _ := json.MarshalIndent(map[string]interface{}{
		"batchId":            result.BatchID,
		"accountId":          result.AccountID,
		"processed":          result.ProcessedCount,
		"duplicates":         result.DuplicateCount,
		"failed":             result.FailedCount,
		"recomputeTriggered": result.RecomputeTriggered,
	}, "", "  ")
	fmt.Println(string(out))

	if !result.Success {
		os.Exit(1)
	}
}

// readRows loads a .json array of rows or, for any other extension, a CSV export
func readRows(path string) ([]normalize.RawRow, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return normalize.DecodeJSONRows(data)
	}
	return normalize.ParseCSVRows(f)
}
