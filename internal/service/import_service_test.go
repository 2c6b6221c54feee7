package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/normalize"
	"github.com/trade-analytics/internal/types"
)

func sampleRows() []normalize.RawRow {
	return []normalize.RawRow{
		{"symbol": "ES", "side": "long", "qty": "2", "entryPrice": "5000", "exitPrice": "5010", "fees": "4", "date": "2024-03-04"},
		{"side": "short", "qty": "1", "entryPrice": "100", "exitPrice": "90", "date": "2024-03-04"},
		{"symbol": "nq", "side": "short", "qty": "1", "entryPrice": "18000", "exitPrice": "18020", "fees": "2", "date": "2024-03-05"},
	}
}

func TestImportBatch_MissingSymbolFailsOnlyThatRow(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	result, err := h.imports.ImportBatch(ctx, &ImportBatchInput{UserID: "user-1", Rows: sampleRows()})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, 0, result.DuplicateCount)
	assert.True(t, result.RecomputeTriggered)
	require.Len(t, result.PerRowResults, 3)

	failed := result.PerRowResults[1]
	assert.False(t, failed.Success)
	assert.Equal(t, "row 2", failed.RowRef)
	assert.Contains(t, failed.Error, "symbol")

	assert.Equal(t, 2, h.trades.count())

	overall, err := h.snapshots.GetByUserAndScope(ctx, "user-1", types.ScopeOverall)
	require.NoError(t, err)
	require.NotNil(t, overall)
	assert.Equal(t, int64(2), overall.TotalTrades)
	// ES long: (5010-5000)*2-4 = 16; NQ short: (18000-18020)*1-2 = -22
	assert.Equal(t, "-6", overall.TotalPnL.String())
	assert.Equal(t, int64(1), overall.Wins)
	assert.Equal(t, int64(1), overall.Losses)
}

func TestImportBatch_ResubmissionIsIdempotent(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	first, err := h.imports.ImportBatch(ctx, &ImportBatchInput{UserID: "user-1", Rows: sampleRows()})
	require.NoError(t, err)
	before, err := h.snapshots.GetByUserAndScope(ctx, "user-1", types.ScopeOverall)
	require.NoError(t, err)

	second, err := h.imports.ImportBatch(ctx, &ImportBatchInput{UserID: "user-1", Rows: sampleRows()})
	require.NoError(t, err)

	assert.Equal(t, 2, h.trades.count())
	assert.Equal(t, 2, second.ProcessedCount)
	assert.Equal(t, 2, second.DuplicateCount)
	assert.Equal(t, first.AccountID, second.AccountID)

	for i := range first.PerRowResults {
		assert.Equal(t, first.PerRowResults[i].TradeID, second.PerRowResults[i].TradeID)
	}

	after, err := h.snapshots.GetByUserAndScope(ctx, "user-1", types.ScopeOverall)
	require.NoError(t, err)
	assert.Equal(t, before.TotalTrades, after.TotalTrades)
	assert.True(t, before.TotalPnL.Equal(after.TotalPnL))
}

func TestImportBatch_FillIDsDeduplicateAcrossEdits(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	row := normalize.RawRow{
		"contractName": "MESM4", "qty": 1, "buyPrice": "5000", "sellPrice": "5002",
		"boughtTimestamp": "2024-03-04 14:30:00", "soldTimestamp": "2024-03-04 14:35:00",
		"buyFillId": "b-1", "sellFillId": "s-1",
	}
	edited := normalize.RawRow{}
	for k, v := range row {
		edited[k] = v
	}
	edited["sellPrice"] = "5003"

	result, err := h.imports.ImportBatch(ctx, &ImportBatchInput{
		UserID: "user-1",
		Broker: types.BrokerTradovate,
		Rows:   []normalize.RawRow{row, edited},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedCount)
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, result.PerRowResults[0].TradeID, result.PerRowResults[1].TradeID)
	assert.Equal(t, 1, h.trades.count())
}

func TestImportBatch_ConcurrentFirstImportsShareDefaultAccount(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	accountIDs := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows := []normalize.RawRow{{"symbol": "ES", "qty": i + 1, "entryPrice": "10", "exitPrice": "11", "date": "2024-03-04"}}
			result, err := h.imports.ImportBatch(ctx, &ImportBatchInput{UserID: "user-1", Rows: rows})
			errs[i] = err
			if result != nil {
				accountIDs[i] = result.AccountID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, accountIDs[0], accountIDs[i])
	}
	assert.Equal(t, 1, h.accounts.countDefaults("user-1"))
	assert.Equal(t, workers, h.trades.count())
}

func TestImportBatch_ForeignAccountFallsBackToDefault(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	h.accounts.add(&models.TradingAccount{ID: "acct-other", UserID: "user-2", Name: "Main"})

	foreign := "acct-other"
	result, err := h.imports.ImportBatch(ctx, &ImportBatchInput{
		UserID:    "user-1",
		AccountID: &foreign,
		Rows:      sampleRows()[:1],
	})
	require.NoError(t, err)

	assert.NotEqual(t, foreign, result.AccountID)
	def, err := h.accounts.FindDefault(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, def.ID, result.AccountID)
}

func TestImportBatch_OwnedAccountIsUsed(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	h.accounts.add(&models.TradingAccount{ID: "acct-mine", UserID: "user-1", Name: "Main"})

	owned := "acct-mine"
	result, err := h.imports.ImportBatch(ctx, &ImportBatchInput{UserID: "user-1", AccountID: &owned, Rows: sampleRows()[:1]})
	require.NoError(t, err)
	assert.Equal(t, owned, result.AccountID)
	assert.Equal(t, 0, h.accounts.countDefaults("user-1"))
}

func TestImportBatch_NamedAccountIsNotAdoptedAsDefault(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	h.accounts.add(&models.TradingAccount{ID: "acct-mine", UserID: "user-1", Name: "Main"})

	result, err := h.imports.ImportBatch(ctx, &ImportBatchInput{UserID: "user-1", Rows: sampleRows()[:1]})
	require.NoError(t, err)

	assert.NotEqual(t, "acct-mine", result.AccountID)
	assert.Equal(t, 1, h.accounts.countDefaults("user-1"))
	def, err := h.accounts.FindDefault(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, models.DefaultAccountName, def.Name)
	assert.Equal(t, def.ID, result.AccountID)
}

func TestImportBatch_NonObjectRow(t *testing.T) {
	h := newTestHarness()

	result, err := h.imports.ImportBatch(context.Background(), &ImportBatchInput{
		UserID: "user-1",
		Rows:   []normalize.RawRow{nil, sampleRows()[0]},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, "row is not an object", result.PerRowResults[0].Error)
}

func TestImportBatch_AllRowsFailed(t *testing.T) {
	h := newTestHarness()

	result, err := h.imports.ImportBatch(context.Background(), &ImportBatchInput{
		UserID: "user-1",
		Rows:   []normalize.RawRow{{"qty": 1}, {"symbol": "ES", "qty": 0}},
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.False(t, result.RecomputeTriggered)
	assert.Equal(t, 2, result.FailedCount)
	assert.Contains(t, result.PerRowResults[1].Error, "quantity")
	assert.Equal(t, 0, h.snapshots.replaces)
}

func TestImportBatch_Validation(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	tests := []struct {
		name  string
		input *ImportBatchInput
		code  string
	}{
		{"nil input", nil, "INVALID_BATCH"},
		{"missing user", &ImportBatchInput{Rows: sampleRows()}, "INVALID_BATCH"},
		{"empty rows", &ImportBatchInput{UserID: "user-1"}, "INVALID_BATCH"},
		{"too many rows", &ImportBatchInput{UserID: "user-1", Rows: make([]normalize.RawRow, 101)}, "BATCH_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.imports.ImportBatch(ctx, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.Categorize(err).Code)
		})
	}
}

func TestImportBatch_AccountStoreUnavailableAbortsBatch(t *testing.T) {
	h := newTestHarness()
	h.accounts.err = errors.New("connection refused")

	result, err := h.imports.ImportBatch(context.Background(), &ImportBatchInput{UserID: "user-1", Rows: sampleRows()})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
	assert.Equal(t, "DATABASE_ERROR", apperrors.Categorize(err).Code)
	assert.Equal(t, 0, h.trades.count())
}

func TestImportBatch_RecordsAudit(t *testing.T) {
	h := newTestHarness()
	audit := &recordingAudit{}
	h.imports.audit = audit

	result, err := h.imports.ImportBatch(context.Background(), &ImportBatchInput{
		UserID: "user-1",
		Broker: "TopstepX",
		Rows:   sampleRows(),
	})
	require.NoError(t, err)

	require.Len(t, audit.batches, 1)
	assert.Equal(t, result.BatchID, audit.batches[0].BatchID)
	assert.Equal(t, types.BrokerTopstepX, audit.broker)
}

type recordingAudit struct {
	batches []*models.BatchImportResult
	broker  string
}

func (r *recordingAudit) RecordBatch(ctx context.Context, userID, broker string, result *models.BatchImportResult, importedAt time.Time) error {
	r.batches = append(r.batches, result)
	r.broker = broker
	return nil
}
