package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

func newDefaultAccount(userID string) *models.TradingAccount {
	return &models.TradingAccount{
		UserID:    userID,
		Name:      models.DefaultAccountName,
		Broker:    types.BrokerGeneric,
		IsDefault: true,
	}
}

func TestAccountRepository_InsertIfAbsentConcurrent(t *testing.T) {
	db := newTestPostgres(t)
	repo := NewAccountRepository(db)
	ctx := testContext(t)
	userID := "it-" + uuid.New().String()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.InsertIfAbsent(ctx, newDefaultAccount(userID))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)

	accounts, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].IsDefault)

	found, err := repo.FindDefault(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, accounts[0].ID, found.ID)

	other, err := repo.GetByIDAndUser(ctx, accounts[0].ID, "someone-else")
	require.NoError(t, err)
	assert.Nil(t, other, "ownership is enforced in the query")
}

func TestAccountRepository_CreateDuplicateName(t *testing.T) {
	db := newTestPostgres(t)
	repo := NewAccountRepository(db)
	ctx := testContext(t)
	userID := "it-" + uuid.New().String()

	require.NoError(t, repo.Create(ctx, &models.TradingAccount{UserID: userID, Name: "Evaluation", Broker: "topstepx"}))
	err := repo.Create(ctx, &models.TradingAccount{UserID: userID, Name: "Evaluation", Broker: "topstepx"})
	assert.ErrorIs(t, err, types.ErrAccountExists)
}

func TestTradeRepository_InsertIfAbsentDedup(t *testing.T) {
	db := newTestPostgres(t)
	accounts := NewAccountRepository(db)
	trades := NewTradeRepository(db)
	ctx := testContext(t)
	userID := "it-" + uuid.New().String()

	account := newDefaultAccount(userID)
	_, err := accounts.InsertIfAbsent(ctx, account)
	require.NoError(t, err)

	buy, sell := "b-1", "s-1"
	newTrade := func() *models.Trade {
		return &models.Trade{
			UserID:      userID,
			AccountID:   account.ID,
			Symbol:      "ES",
			Direction:   types.DirectionLong,
			Quantity:    decimal.NewFromInt(1),
			EntryPrice:  decimal.RequireFromString("5000.25"),
			ExitPrice:   decimal.RequireFromString("5001.25"),
			PnL:         decimal.RequireFromString("50"),
			TradeDate:   time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC),
			BuyFillID:   &buy,
			SellFillID:  &sell,
			Fingerprint: "fills:b-1:s-1",
			Broker:      types.BrokerTradovate,
			Metadata:    &models.TradeMetadata{Warnings: []string{"w"}},
		}
	}

	id1, dup, err := trades.InsertIfAbsent(ctx, newTrade())
	require.NoError(t, err)
	assert.False(t, dup)

	id2, dup, err := trades.InsertIfAbsent(ctx, newTrade())
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, id1, id2)

	listed, err := trades.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].PnL.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, []string{"w"}, listed[0].Warnings())

	owners, err := trades.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, owners, userID)

	deleted, err := trades.Delete(ctx, id1, userID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestSnapshotRepository_ReplaceAll(t *testing.T) {
	db := newTestPostgres(t)
	repo := NewSnapshotRepository(db)
	ctx := testContext(t)
	userID := "it-" + uuid.New().String()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first := make([]*models.AnalyticsSnapshot, 0, len(types.AllScopes))
	for _, scope := range types.AllScopes {
		first = append(first, models.NewEmptySnapshot(userID, scope, at))
	}
	require.NoError(t, repo.ReplaceAll(ctx, userID, first))

	overall := models.NewEmptySnapshot(userID, types.ScopeOverall, at)
	overall.TotalTrades = 3
	overall.Cumulative = []models.CumulativePoint{{Key: "t1", Value: decimal.NewFromInt(5)}}
	require.NoError(t, repo.ReplaceAll(ctx, userID, []*models.AnalyticsSnapshot{overall}))

	got, err := repo.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].TotalTrades)
	assert.Len(t, got[0].Cumulative, 1)

	missing, err := repo.GetByUserAndScope(ctx, userID, types.ScopeDaily)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSnapshotRepository_ReplaceAllConcurrent(t *testing.T) {
	db := newTestPostgres(t)
	repo := NewSnapshotRepository(db)
	ctx := testContext(t)
	userID := "it-" + uuid.New().String()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	const writers = 8
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(total int64) {
			defer wg.Done()
			set := make([]*models.AnalyticsSnapshot, 0, len(types.AllScopes))
			for _, scope := range types.AllScopes {
				snapshot := models.NewEmptySnapshot(userID, scope, at)
				snapshot.TotalTrades = total
				set = append(set, snapshot)
			}
			assert.NoError(t, repo.ReplaceAll(ctx, userID, set))
		}(int64(i))
	}
	wg.Wait()

	got, err := repo.GetByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, got, len(types.AllScopes))

	total := got[0].TotalTrades
	assert.GreaterOrEqual(t, total, int64(1))
	assert.LessOrEqual(t, total, int64(writers))
	for _, snapshot := range got {
		assert.Equal(t, total, snapshot.TotalTrades, "every scope comes from the same writer")
	}
}
