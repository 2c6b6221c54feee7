package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/trade-analytics/internal/models"
)

// ImportAuditRepository appends per-row import outcomes to ClickHouse
type ImportAuditRepository struct {
	db *ClickHouseDB
}

// NewImportAuditRepository creates a new import audit repository
func NewImportAuditRepository(db *ClickHouseDB) *ImportAuditRepository {
	return &ImportAuditRepository{db: db}
}

// RecordBatch writes one audit row per imported row
func (r *ImportAuditRepository) RecordBatch(ctx context.Context, userID, broker string, result *models.BatchImportResult, importedAt time.Time) error {
	if result == nil || len(result.PerRowResults) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO import_row_outcomes (
			batch_id, user_id, account_id, broker, row_index, row_ref,
			success, duplicate, trade_id, error, warnings, imported_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range result.PerRowResults {
		warnings := row.Warnings
		if warnings == nil {
			warnings = []string{}
		}

		err = batch.Append(
			result.BatchID,
			userID,
			result.AccountID,
			broker,
			uint32(row.Index), // #nosec G115 - row index is bounded by the batch row limit
			row.RowRef,
			boolToUInt8(row.Success),
			boolToUInt8(row.Duplicate),
			row.TradeID,
			row.Error,
			warnings,
			importedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to append row %d to batch: %w", row.Index, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
