package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/normalize"
	"github.com/trade-analytics/internal/types"
)

// Mock repositories for testing. They enforce the same uniqueness rules as
// the Postgres schema.

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.TradingAccount
	nextID   int
	err      error
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[string]*models.TradingAccount)}
}

func (m *mockAccountRepo) add(account *models.TradingAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

func (m *mockAccountRepo) conflicts(account *models.TradingAccount) bool {
	for _, a := range m.accounts {
		if a.UserID != account.UserID {
			continue
		}
		if a.Name == account.Name || (a.IsDefault && account.IsDefault) {
			return true
		}
	}
	return false
}

func (m *mockAccountRepo) insert(account *models.TradingAccount) {
	m.nextID++
	account.ID = fmt.Sprintf("account-%d", m.nextID)
	account.CreatedAt = testEpoch
	stored := *account
	m.accounts[account.ID] = &stored
}

func (m *mockAccountRepo) GetByIDAndUser(ctx context.Context, id, userID string) (*models.TradingAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if a, ok := m.accounts[id]; ok && a.UserID == userID {
		out := *a
		return &out, nil
	}
	return nil, nil
}

func (m *mockAccountRepo) FindDefault(ctx context.Context, userID string) (*models.TradingAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.accounts {
		if a.UserID == userID && a.IsDefault {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockAccountRepo) InsertIfAbsent(ctx context.Context, account *models.TradingAccount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.conflicts(account) {
		return false, nil
	}
	m.insert(account)
	return true, nil
}

func (m *mockAccountRepo) GetByUserAndName(ctx context.Context, userID, name string) (*models.TradingAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.Name == name {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockAccountRepo) Create(ctx context.Context, account *models.TradingAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.conflicts(account) {
		return types.ErrAccountExists
	}
	m.insert(account)
	return nil
}

func (m *mockAccountRepo) ListByUser(ctx context.Context, userID string) ([]*models.TradingAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.TradingAccount
	for _, a := range m.accounts {
		if a.UserID == userID {
			out := *a
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockAccountRepo) countDefaults(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if a.UserID == userID && a.IsDefault {
			n++
		}
	}
	return n
}

type mockTradeRepo struct {
	mu      sync.Mutex
	trades  map[string]*models.Trade
	seq     int64
	listErr error
}

func newMockTradeRepo() *mockTradeRepo {
	return &mockTradeRepo{trades: make(map[string]*models.Trade)}
}

func copyTrade(t *models.Trade) *models.Trade {
	out := *t
	if t.Metadata != nil {
		md := *t.Metadata
		md.Warnings = append([]string(nil), t.Metadata.Warnings...)
		out.Metadata = &md
	}
	return &out
}

// collision returns the id of a stored trade sharing a dedup key with trade
func (m *mockTradeRepo) collision(trade *models.Trade) string {
	for id, existing := range m.trades {
		if id == trade.ID || existing.AccountID != trade.AccountID {
			continue
		}
		if existing.Fingerprint == trade.Fingerprint {
			return id
		}
		if trade.HasFillIDs() && existing.HasFillIDs() &&
			*existing.BuyFillID == *trade.BuyFillID && *existing.SellFillID == *trade.SellFillID {
			return id
		}
	}
	return ""
}

func (m *mockTradeRepo) InsertIfAbsent(ctx context.Context, trade *models.Trade) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id := m.collision(trade); id != "" {
		return id, true, nil
	}
	m.seq++
	trade.ID = fmt.Sprintf("trade-%d", m.seq)
	trade.Seq = m.seq
	trade.CreatedAt = testEpoch.Add(time.Duration(m.seq) * time.Second)
	m.trades[trade.ID] = copyTrade(trade)
	return trade.ID, false, nil
}

func (m *mockTradeRepo) ListByUser(ctx context.Context, userID string) ([]*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Trade
	for _, t := range m.trades {
		if t.UserID == userID {
			result = append(result, copyTrade(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (m *mockTradeRepo) List(ctx context.Context, userID string, filter *models.TradeFilter) ([]*models.Trade, error) {
	all, err := m.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if filter == nil || filter.Symbol == nil {
		return all, nil
	}
	var result []*models.Trade
	for _, t := range all {
		if strings.EqualFold(t.Symbol, *filter.Symbol) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *mockTradeRepo) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trades[id]; ok && t.UserID == userID {
		return copyTrade(t), nil
	}
	return nil, nil
}

func (m *mockTradeRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trades[id]; ok && t.UserID == userID {
		delete(m.trades, id)
		return true, nil
	}
	return false, nil
}

func (m *mockTradeRepo) Update(ctx context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[trade.ID]; !ok {
		return errors.New("trade not found")
	}
	if m.collision(trade) != "" {
		return types.ErrDuplicateTrade
	}
	m.trades[trade.ID] = copyTrade(trade)
	return nil
}

func (m *mockTradeRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}

type mockSnapshotRepo struct {
	mu         sync.Mutex
	snapshots  map[string][]*models.AnalyticsSnapshot
	replaceErr error
	replaces   int
}

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{snapshots: make(map[string][]*models.AnalyticsSnapshot)}
}

func (m *mockSnapshotRepo) GetByUser(ctx context.Context, userID string) ([]*models.AnalyticsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AnalyticsSnapshot(nil), m.snapshots[userID]...), nil
}

func (m *mockSnapshotRepo) GetByUserAndScope(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots[userID] {
		if s.Scope == scope {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockSnapshotRepo) ReplaceAll(ctx context.Context, userID string, snapshots []*models.AnalyticsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaces++
	m.snapshots[userID] = append([]*models.AnalyticsSnapshot(nil), snapshots...)
	return nil
}

type mockSnapshotCache struct {
	mu          sync.Mutex
	entries     map[string]*models.AnalyticsSnapshot
	setErr      error
	setCalls    int
	invalidated []string
}

func newMockSnapshotCache() *mockSnapshotCache {
	return &mockSnapshotCache{entries: make(map[string]*models.AnalyticsSnapshot)}
}

func (m *mockSnapshotCache) SetSnapshots(ctx context.Context, snapshots []*models.AnalyticsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	for _, s := range snapshots {
		m.entries[s.UserID+":"+string(s.Scope)] = s
	}
	return nil
}

func (m *mockSnapshotCache) GetSnapshot(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entries[userID+":"+string(scope)]
	return s, ok, nil
}

func (m *mockSnapshotCache) InvalidateUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, userID)
	for key := range m.entries {
		if strings.HasPrefix(key, userID+":") {
			delete(m.entries, key)
		}
	}
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []*AnalyticsUpdatedEvent
	err    error
}

func (m *mockNotifier) NotifyAnalyticsUpdated(ctx context.Context, event *AnalyticsUpdatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

// testHarness wires the ingestion and analytics services over the mocks
type testHarness struct {
	accounts  *mockAccountRepo
	trades    *mockTradeRepo
	snapshots *mockSnapshotRepo
	cache     *mockSnapshotCache
	notifier  *mockNotifier
	engine    *AnalyticsEngine
	trigger   *RecomputeTrigger
	writer    *TradeWriter
	imports   *ImportService
}

func newTestHarness() *testHarness {
	logger := logging.NewNopLogger()
	h := &testHarness{
		accounts:  newMockAccountRepo(),
		trades:    newMockTradeRepo(),
		snapshots: newMockSnapshotRepo(),
		cache:     newMockSnapshotCache(),
		notifier:  &mockNotifier{},
	}

	h.engine = NewAnalyticsEngine(h.trades, h.snapshots, h.cache, h.notifier, logger)
	h.engine.clock = func() time.Time { return testEpoch }
	h.engine.cacheCfg.InitialDelay = time.Millisecond
	h.engine.cacheCfg.MaxDelay = time.Millisecond

	h.trigger = NewRecomputeTrigger(h.engine, logger)
	h.writer = NewTradeWriter(h.trades, DefaultTradeWriterConfig(), logger)

	normalizer := newTestNormalizer()
	h.imports = NewImportService(normalizer, NewAccountResolver(h.accounts, "", logger), h.writer, h.trigger, nil,
		ImportServiceConfig{MaxBatchRows: 100}, logger)
	h.imports.clock = func() time.Time { return testEpoch }

	return h
}

func newTestNormalizer() *normalize.Normalizer {
	return normalize.NewNormalizer(nil, func() time.Time { return testEpoch })
}
