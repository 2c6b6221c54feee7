// Package models provides data models for the trade analytics system.
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/trade-analytics/internal/types"
)

// Trade represents a single executed round-trip (or single fill) owned by one account
type Trade struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"userId" db:"user_id"`
	AccountID   string          `json:"accountId" db:"account_id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Direction   types.Direction `json:"direction" db:"direction"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	EntryPrice  decimal.Decimal `json:"entryPrice" db:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exitPrice" db:"exit_price"`
	Fees        decimal.Decimal `json:"fees" db:"fees"`
	PnL         decimal.Decimal `json:"pnl" db:"pnl"`
	EntryTime   *time.Time      `json:"entryTime,omitempty" db:"entry_time"`
	ExitTime    *time.Time      `json:"exitTime,omitempty" db:"exit_time"`
	TradeDate   time.Time       `json:"tradeDate" db:"trade_date"`
	BuyFillID   *string         `json:"buyFillId,omitempty" db:"buy_fill_id"`
	SellFillID  *string         `json:"sellFillId,omitempty" db:"sell_fill_id"`
	Fingerprint string          `json:"-" db:"fingerprint"`
	Broker      string          `json:"broker" db:"broker"`
	Metadata    *TradeMetadata  `json:"metadata,omitempty" db:"metadata"`
	Seq         int64           `json:"-" db:"seq"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`

	// Hints captured by the normalizer and consumed by the trade writer.
	// They are not persisted.
	DirectionHint string `json:"-" db:"-"`
	PnLSupplied   bool   `json:"-" db:"-"`
	// DateFromClock is set when no date or timestamp column was usable and
	// TradeDate fell back to the import clock.
	DateFromClock bool `json:"-" db:"-"`
}

// TradeMetadata keeps the original broker row and any normalization warnings for audit
type TradeMetadata struct {
	RawRow   map[string]interface{} `json:"rawRow,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
}

// HasFillIDs reports whether both broker fill identifiers are present
func (t *Trade) HasFillIDs() bool {
	return t.BuyFillID != nil && *t.BuyFillID != "" && t.SellFillID != nil && *t.SellFillID != ""
}

// AddWarning appends an advisory warning to the trade metadata
func (t *Trade) AddWarning(warning string) {
	if t.Metadata == nil {
		t.Metadata = &TradeMetadata{}
	}
	t.Metadata.Warnings = append(t.Metadata.Warnings, warning)
}

// Warnings returns the advisory warnings recorded for the trade
func (t *Trade) Warnings() []string {
	if t.Metadata == nil {
		return nil
	}
	return t.Metadata.Warnings
}

// TradeFilter narrows trade listings
type TradeFilter struct {
	AccountID *string
	Symbol    *string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
