package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/trade-analytics/internal/types"
)

// AnalyticsSnapshot is the derived analytics summary for a user at one scope.
// It is replaced wholesale on each recomputation.
type AnalyticsSnapshot struct {
	UserID        string                     `json:"userId" db:"user_id"`
	Scope         types.MetricScope          `json:"scope" db:"scope"`
	TotalTrades   int64                      `json:"totalTrades" db:"total_trades"`
	Wins          int64                      `json:"wins" db:"wins"`
	Losses        int64                      `json:"losses" db:"losses"`
	WinRate       decimal.Decimal            `json:"winRate" db:"win_rate"`
	AveragePnL    decimal.Decimal            `json:"averagePnl" db:"average_pnl"`
	LargestWin    decimal.Decimal            `json:"largestWin" db:"largest_win"`
	LargestLoss   decimal.Decimal            `json:"largestLoss" db:"largest_loss"`
	TotalPnL      decimal.Decimal            `json:"totalPnl" db:"total_pnl"`
	PnLBuckets    map[string]decimal.Decimal `json:"pnlBuckets" db:"pnl_buckets"`
	Cumulative    []CumulativePoint          `json:"cumulative" db:"cumulative"`
	CumulativePnL decimal.Decimal            `json:"cumulativePnl" db:"cumulative_pnl"`
	MaxDrawdown   decimal.Decimal            `json:"maxDrawdown" db:"max_drawdown"`
	LastUpdated   time.Time                  `json:"lastUpdated" db:"last_updated"`
}

// CumulativePoint is one step of the running P&L curve
type CumulativePoint struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
}

// NewEmptySnapshot returns an all-zero snapshot for a user and scope
func NewEmptySnapshot(userID string, scope types.MetricScope, at time.Time) *AnalyticsSnapshot {
	return &AnalyticsSnapshot{
		UserID:        userID,
		Scope:         scope,
		WinRate:       decimal.Zero,
		AveragePnL:    decimal.Zero,
		LargestWin:    decimal.Zero,
		LargestLoss:   decimal.Zero,
		TotalPnL:      decimal.Zero,
		PnLBuckets:    map[string]decimal.Decimal{},
		Cumulative:    []CumulativePoint{},
		CumulativePnL: decimal.Zero,
		MaxDrawdown:   decimal.Zero,
		LastUpdated:   at.UTC(),
	}
}
