package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/normalize"
	"github.com/trade-analytics/internal/types"
)

// ImportAuditLog records per-row import outcomes. Recording is best effort.
type ImportAuditLog interface {
	RecordBatch(ctx context.Context, userID, broker string, result *models.BatchImportResult, importedAt time.Time) error
}

// ImportBatchInput represents a batch of raw broker rows for one user
type ImportBatchInput struct {
	UserID    string
	AccountID *string
	Broker    string
	// Rows holds one raw record per element. A nil element stands for an
	// input value that was not an object.
	Rows []normalize.RawRow
}

// ImportServiceConfig holds batch limits and defaults
type ImportServiceConfig struct {
	MaxBatchRows  int
	DefaultBroker string
}

// ImportService coordinates a batch import: normalize, resolve the account,
// write each row, then trigger one recomputation
type ImportService struct {
	normalizer *normalize.Normalizer
	resolver   *AccountResolver
	writer     *TradeWriter
	trigger    *RecomputeTrigger
	audit      ImportAuditLog
	cfg        ImportServiceConfig
	clock      normalize.Clock
	logger     *logging.Logger
}

// NewImportService creates a new import service. audit may be nil.
func NewImportService(
	normalizer *normalize.Normalizer,
	resolver *AccountResolver,
	writer *TradeWriter,
	trigger *RecomputeTrigger,
	audit ImportAuditLog,
	cfg ImportServiceConfig,
	logger *logging.Logger,
) *ImportService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if cfg.DefaultBroker == "" {
		cfg.DefaultBroker = types.BrokerGeneric
	}
	return &ImportService{
		normalizer: normalizer,
		resolver:   resolver,
		writer:     writer,
		trigger:    trigger,
		audit:      audit,
		cfg:        cfg,
		clock:      normalize.SystemClock,
		logger:     logger.WithComponent("import_service"),
	}
}

// ImportBatch imports every row of the batch. Row problems are reported in
// the per-row results; only malformed input or an unavailable account store
// fail the whole batch.
func (s *ImportService) ImportBatch(ctx context.Context, input *ImportBatchInput) (*models.BatchImportResult, error) {
	if input == nil || strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.NewInvalidBatchError("userId is required")
	}
	if len(input.Rows) == 0 {
		return nil, apperrors.NewInvalidBatchError("rows must be a non-empty array")
	}
	if s.cfg.MaxBatchRows > 0 && len(input.Rows) > s.cfg.MaxBatchRows {
		return nil, apperrors.NewBatchTooLargeError(len(input.Rows), s.cfg.MaxBatchRows)
	}

	broker := strings.ToLower(strings.TrimSpace(input.Broker))
	if broker == "" {
		broker = s.cfg.DefaultBroker
	}

	result := &models.BatchImportResult{
		BatchID:       uuid.New().String(),
		PerRowResults: make([]models.RowResult, 0, len(input.Rows)),
	}

	logger := s.logger.WithFields(map[string]interface{}{
		"user_id":  input.UserID,
		"batch_id": result.BatchID,
		"broker":   broker,
	})

	accountID, err := s.resolver.ResolveAccount(ctx, input.UserID, input.AccountID)
	if err != nil {
		logger.WithError(err).Error("account resolution failed, aborting batch")
		return nil, err
	}
	result.AccountID = accountID

	for i, row := range input.Rows {
		rowResult := s.importRow(ctx, input.UserID, accountID, broker, i, row)
		if rowResult.Success {
			result.ProcessedCount++
			if rowResult.Duplicate {
				result.DuplicateCount++
			}
		} else {
			result.FailedCount++
		}
		result.PerRowResults = append(result.PerRowResults, rowResult)
	}

	result.Success = result.ProcessedCount > 0

	logger.WithFields(map[string]interface{}{
		"processed":  result.ProcessedCount,
		"failed":     result.FailedCount,
		"duplicates": result.DuplicateCount,
	}).Info("batch import finished")

	if result.Success && s.trigger != nil {
		s.trigger.TriggerRecompute(ctx, input.UserID, "batch_import")
		result.RecomputeTriggered = true
	}

	if s.audit != nil {
		if err := s.audit.RecordBatch(ctx, input.UserID, broker, result, s.clock()); err != nil {
			logger.WithError(err).Warn("failed to record import audit log")
		}
	}

	return result, nil
}

// importRow runs one row through normalize and write. It never returns an
// error or panics; every failure becomes a row result.
func (s *ImportService) importRow(ctx context.Context, userID, accountID, broker string, index int, row normalize.RawRow) (rowResult models.RowResult) {
	rowResult = models.RowResult{
		Index:  index,
		RowRef: fmt.Sprintf("row %d", index+1),
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"user_id": userID,
				"row":     index,
				"panic":   fmt.Sprint(r),
			}).Error("recovered panic while importing row")
			rowResult.Success = false
			rowResult.TradeID = ""
			rowResult.Duplicate = false
			rowResult.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	if row == nil {
		rowResult.Error = "row is not an object"
		return rowResult
	}

	trade := s.normalizer.Normalize(row, broker)
	trade.UserID = userID
	trade.AccountID = accountID

	written, err := s.writer.WriteTrade(ctx, trade)
	rowResult.Warnings = trade.Warnings()
	if err != nil {
		rowResult.Error = err.Error()
		if !apperrors.IsRowError(err) {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"user_id": userID,
				"row":     index,
			}).Warn("failed to persist row")
		}
		return rowResult
	}

	rowResult.Success = true
	rowResult.TradeID = written.TradeID
	rowResult.Duplicate = written.Duplicate
	return rowResult
}
