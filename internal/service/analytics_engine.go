package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/retry"
	"github.com/trade-analytics/internal/types"
)

var hundred = decimal.NewFromInt(100)

// TradeLister lists a user's trades in (trade date, sequence) order
type TradeLister interface {
	ListByUser(ctx context.Context, userID string) ([]*models.Trade, error)
}

// SnapshotRepository interface for analytics snapshot persistence
type SnapshotRepository interface {
	GetByUser(ctx context.Context, userID string) ([]*models.AnalyticsSnapshot, error)
	GetByUserAndScope(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, error)
	ReplaceAll(ctx context.Context, userID string, snapshots []*models.AnalyticsSnapshot) error
}

// SnapshotCache is the read-through cache in front of the snapshot table
type SnapshotCache interface {
	SetSnapshots(ctx context.Context, snapshots []*models.AnalyticsSnapshot) error
	GetSnapshot(ctx context.Context, userID string, scope types.MetricScope) (*models.AnalyticsSnapshot, bool, error)
	InvalidateUser(ctx context.Context, userID string) error
}

// AnalyticsNotifier announces that a user's snapshots changed
type AnalyticsNotifier interface {
	NotifyAnalyticsUpdated(ctx context.Context, event *AnalyticsUpdatedEvent) error
}

// RecomputeResult describes which branch of the safe-update policy ran.
// Err carries the cause when snapshots were preserved because of a failure.
type RecomputeResult struct {
	UserID    string
	Outcome   types.RecomputeOutcome
	Snapshots map[types.MetricScope]*models.AnalyticsSnapshot
	Err       error
}

// AnalyticsEngine rebuilds a user's analytics snapshots from their trades
type AnalyticsEngine struct {
	trades    TradeLister
	snapshots SnapshotRepository
	cache     SnapshotCache
	notifier  AnalyticsNotifier
	clock     func() time.Time
	cacheCfg  *retry.RetryConfig
	logger    *logging.Logger
}

// NewAnalyticsEngine creates a new analytics engine. cache and notifier may be nil.
func NewAnalyticsEngine(
	trades TradeLister,
	snapshots SnapshotRepository,
	cache SnapshotCache,
	notifier AnalyticsNotifier,
	logger *logging.Logger,
) *AnalyticsEngine {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &AnalyticsEngine{
		trades:    trades,
		snapshots: snapshots,
		cache:     cache,
		notifier:  notifier,
		clock:     func() time.Time { return time.Now().UTC() },
		cacheCfg:  retry.CacheRetryConfig(),
		logger:    logger.WithComponent("analytics_engine"),
	}
}

// Recompute applies the safe-update policy for one user:
//
//	no trades, prior snapshots   -> preserve
//	no trades, no prior          -> initialize all-zero snapshots
//	trades, listing/compute/write failure -> preserve, cause in Result.Err
//	trades, success              -> replace every scope atomically
//
// The returned error is non-nil only for an empty user id.
func (e *AnalyticsEngine) Recompute(ctx context.Context, userID string) (*RecomputeResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: "userId is required",
		}
	}

	logger := e.logger.WithField("user_id", userID)

	trades, err := e.trades.ListByUser(ctx, userID)
	if err != nil {
		return e.preserve(ctx, userID, fmt.Errorf("failed to list trades: %w", err)), nil
	}

	if len(trades) == 0 {
		prior, err := e.snapshots.GetByUser(ctx, userID)
		if err != nil {
			return e.preserve(ctx, userID, fmt.Errorf("failed to load prior snapshots: %w", err)), nil
		}
		if len(prior) > 0 {
			logger.Info("no trades found, preserving prior snapshots")
			return &RecomputeResult{
				UserID:    userID,
				Outcome:   types.OutcomePreserved,
				Snapshots: byScope(prior),
			}, nil
		}

		initial := make([]*models.AnalyticsSnapshot, 0, len(types.AllScopes))
		at := e.clock()
		for _, scope := range types.AllScopes {
			initial = append(initial, models.NewEmptySnapshot(userID, scope, at))
		}
		if err := e.snapshots.ReplaceAll(ctx, userID, initial); err != nil {
			return e.preserve(ctx, userID, fmt.Errorf("failed to initialize snapshots: %w", err)), nil
		}

		e.afterWrite(ctx, userID, initial, types.OutcomeInitialized)
		return &RecomputeResult{
			UserID:    userID,
			Outcome:   types.OutcomeInitialized,
			Snapshots: byScope(initial),
		}, nil
	}

	computed, err := safeCompute(userID, trades)
	if err != nil {
		return e.preserve(ctx, userID, err), nil
	}

	if err := e.snapshots.ReplaceAll(ctx, userID, computed); err != nil {
		return e.preserve(ctx, userID, fmt.Errorf("failed to replace snapshots: %w", err)), nil
	}

	e.afterWrite(ctx, userID, computed, types.OutcomeReplaced)

	logger.WithField("trades", len(trades)).Info("analytics recomputed")

	return &RecomputeResult{
		UserID:    userID,
		Outcome:   types.OutcomeReplaced,
		Snapshots: byScope(computed),
	}, nil
}

// preserve logs the failure and returns whatever snapshots are currently stored
func (e *AnalyticsEngine) preserve(ctx context.Context, userID string, cause error) *RecomputeResult {
	e.logger.WithField("user_id", userID).WithError(cause).Error("recomputation failed, preserving prior snapshots")

	result := &RecomputeResult{
		UserID:  userID,
		Outcome: types.OutcomePreserved,
		Err:     cause,
	}

	if prior, err := e.snapshots.GetByUser(ctx, userID); err == nil {
		result.Snapshots = byScope(prior)
	}
	return result
}

// afterWrite refreshes the cache and publishes the update. Failures here
// never undo the write; a failed cache refresh drops the user's cache
// entries so readers fall through to the table.
func (e *AnalyticsEngine) afterWrite(ctx context.Context, userID string, snapshots []*models.AnalyticsSnapshot, outcome types.RecomputeOutcome) {
	logger := e.logger.WithField("user_id", userID)

	if e.cache != nil {
		err := retry.Do(ctx, e.cacheCfg, func(ctx context.Context, attempt int) error {
			return e.cache.SetSnapshots(ctx, snapshots)
		})
		if err != nil {
			logger.WithError(err).Warn("failed to refresh snapshot cache")
			if err := e.cache.InvalidateUser(ctx, userID); err != nil {
				logger.WithError(err).Warn("failed to invalidate snapshot cache")
			}
		}
	}

	if e.notifier != nil {
		event := newAnalyticsUpdatedEvent(userID, outcome, snapshots, e.clock())
		if err := e.notifier.NotifyAnalyticsUpdated(ctx, event); err != nil {
			logger.WithError(err).Warn("failed to publish analytics update")
		}
	}
}

func byScope(snapshots []*models.AnalyticsSnapshot) map[types.MetricScope]*models.AnalyticsSnapshot {
	out := make(map[types.MetricScope]*models.AnalyticsSnapshot, len(snapshots))
	for _, snapshot := range snapshots {
		out[snapshot.Scope] = snapshot
	}
	return out
}

// safeCompute converts a panic in the pure computation into an error so the
// caller can take the preserve branch
func safeCompute(userID string, trades []*models.Trade) (snapshots []*models.AnalyticsSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snapshots = nil
			err = fmt.Errorf("analytics computation panicked: %v", r)
		}
	}()
	return ComputeSnapshots(userID, trades)
}

// ComputeSnapshots derives every scope's snapshot from the trade set.
// It is a pure function of its input; equal inputs give equal output,
// including LastUpdated, which is the newest trade's creation time.
func ComputeSnapshots(userID string, trades []*models.Trade) ([]*models.AnalyticsSnapshot, error) {
	ordered := make([]*models.Trade, 0, len(trades))
	for i, trade := range trades {
		if trade == nil {
			return nil, fmt.Errorf("trade %d is nil", i)
		}
		if trade.UserID != userID {
			return nil, fmt.Errorf("trade %s belongs to user %s, not %s", trade.ID, trade.UserID, userID)
		}
		ordered = append(ordered, trade)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.TradeDate.Equal(b.TradeDate) {
			return a.TradeDate.Before(b.TradeDate)
		}
		return a.Seq < b.Seq
	})

	stats := summarize(ordered)
	lastUpdated := latestCreatedAt(ordered)

	snapshots := make([]*models.AnalyticsSnapshot, 0, len(types.AllScopes))
	for _, scope := range types.AllScopes {
		snapshot := models.NewEmptySnapshot(userID, scope, lastUpdated)
		stats.applyTo(snapshot)

		if scope == types.ScopeOverall {
			points := make([]models.CumulativePoint, 0, len(ordered))
			running := decimal.Zero
			for _, trade := range ordered {
				running = running.Add(trade.PnL)
				points = append(points, models.CumulativePoint{Key: trade.ID, Value: running})
			}
			snapshot.Cumulative = points
		} else {
			keyFn := bucketKeyFunc(scope)
			var keys []string
			for _, trade := range ordered {
				key := keyFn(trade.TradeDate)
				if _, seen := snapshot.PnLBuckets[key]; !seen {
					keys = append(keys, key)
					snapshot.PnLBuckets[key] = decimal.Zero
				}
				snapshot.PnLBuckets[key] = snapshot.PnLBuckets[key].Add(trade.PnL)
			}

			running := decimal.Zero
			points := make([]models.CumulativePoint, 0, len(keys))
			for _, key := range keys {
				running = running.Add(snapshot.PnLBuckets[key])
				points = append(points, models.CumulativePoint{Key: key, Value: running})
			}
			snapshot.Cumulative = points
		}

		snapshot.MaxDrawdown = maxDrawdown(snapshot.Cumulative)
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}

type tradeStats struct {
	total, wins, losses int64
	totalPnL            decimal.Decimal
	largestWin          decimal.Decimal
	largestLoss         decimal.Decimal
}

func summarize(trades []*models.Trade) tradeStats {
	stats := tradeStats{
		totalPnL:    decimal.Zero,
		largestWin:  decimal.Zero,
		largestLoss: decimal.Zero,
	}
	for _, trade := range trades {
		stats.total++
		stats.totalPnL = stats.totalPnL.Add(trade.PnL)
		switch trade.PnL.Sign() {
		case 1:
			stats.wins++
			if trade.PnL.GreaterThan(stats.largestWin) {
				stats.largestWin = trade.PnL
			}
		case -1:
			stats.losses++
			if trade.PnL.LessThan(stats.largestLoss) {
				stats.largestLoss = trade.PnL
			}
		}
	}
	return stats
}

func (s tradeStats) applyTo(snapshot *models.AnalyticsSnapshot) {
	snapshot.TotalTrades = s.total
	snapshot.Wins = s.wins
	snapshot.Losses = s.losses
	snapshot.TotalPnL = s.totalPnL
	snapshot.CumulativePnL = s.totalPnL
	snapshot.LargestWin = s.largestWin
	snapshot.LargestLoss = s.largestLoss
	if s.total > 0 {
		total := decimal.NewFromInt(s.total)
		snapshot.WinRate = decimal.NewFromInt(s.wins).Mul(hundred).Div(total).Round(2)
		snapshot.AveragePnL = s.totalPnL.Div(total).Round(8)
	}
}

func latestCreatedAt(trades []*models.Trade) time.Time {
	var latest time.Time
	for _, trade := range trades {
		if trade.CreatedAt.After(latest) {
			latest = trade.CreatedAt
		}
	}
	if latest.IsZero() && len(trades) > 0 {
		latest = trades[len(trades)-1].TradeDate
	}
	return latest.UTC()
}

// bucketKeyFunc returns the period key for a scope. Dates are bucketed in UTC.
func bucketKeyFunc(scope types.MetricScope) func(time.Time) string {
	switch scope {
	case types.ScopeDaily:
		return func(t time.Time) string { return t.UTC().Format("2006-01-02") }
	case types.ScopeWeekly:
		return func(t time.Time) string {
			year, week := t.UTC().ISOWeek()
			return fmt.Sprintf("%04d-W%02d", year, week)
		}
	case types.ScopeMonthly:
		return func(t time.Time) string { return t.UTC().Format("2006-01") }
	default:
		return func(time.Time) string { return "all" }
	}
}

// maxDrawdown is the largest decline from a running peak of the curve.
// The curve starts from zero, so an initial loss counts as drawdown.
func maxDrawdown(curve []models.CumulativePoint) decimal.Decimal {
	peak := decimal.Zero
	worst := decimal.Zero
	for _, point := range curve {
		if point.Value.GreaterThan(peak) {
			peak = point.Value
		}
		if dd := peak.Sub(point.Value); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}
