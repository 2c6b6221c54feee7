package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// Advisory warning tags recorded in trade metadata
const (
	WarningPnLMismatch   = "pnl_mismatch"
	WarningPnLSign       = "pnl_sign"
	WarningDirectionHint = "direction_hint"
)

// TradeInserter persists trades with dedup-on-conflict semantics
type TradeInserter interface {
	InsertIfAbsent(ctx context.Context, trade *models.Trade) (string, bool, error)
}

// TradeWriterConfig holds the P&L rules applied before persisting
type TradeWriterConfig struct {
	ShortConvention types.ShortPnLConvention
	AbsTolerance    decimal.Decimal
	RelTolerance    decimal.Decimal
}

// DefaultTradeWriterConfig returns the default P&L rules
func DefaultTradeWriterConfig() TradeWriterConfig {
	return TradeWriterConfig{
		ShortConvention: types.ShortEntryMinusExit,
		AbsTolerance:    decimal.RequireFromString("0.01"),
		RelTolerance:    decimal.RequireFromString("0.005"),
	}
}

// WriteResult is the outcome of persisting one trade
type WriteResult struct {
	TradeID   string
	Duplicate bool
	Warnings  []string
}

// TradeWriter canonicalizes and persists trades
type TradeWriter struct {
	repo   TradeInserter
	cfg    TradeWriterConfig
	logger *logging.Logger
}

// NewTradeWriter creates a new trade writer
func NewTradeWriter(repo TradeInserter, cfg TradeWriterConfig, logger *logging.Logger) *TradeWriter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if cfg.ShortConvention == "" {
		cfg.ShortConvention = types.ShortEntryMinusExit
	}
	return &TradeWriter{
		repo:   repo,
		cfg:    cfg,
		logger: logger.WithComponent("trade_writer"),
	}
}

// WriteTrade canonicalizes a normalized trade and persists it. A trade whose
// dedup key already exists is reported as a duplicate of the stored id.
// Validation failures are *errors.RowError.
func (w *TradeWriter) WriteTrade(ctx context.Context, trade *models.Trade) (*WriteResult, error) {
	if err := w.Canonicalize(trade); err != nil {
		return nil, err
	}

	id, duplicate, err := w.repo.InsertIfAbsent(ctx, trade)
	if err != nil {
		return nil, apperrors.NewDatabaseError("insert trade", err)
	}

	if duplicate {
		w.logger.WithFields(map[string]interface{}{
			"account_id": trade.AccountID,
			"trade_id":   id,
		}).Debug("trade already imported")
	}

	return &WriteResult{
		TradeID:   id,
		Duplicate: duplicate,
		Warnings:  trade.Warnings(),
	}, nil
}

// Canonicalize validates the trade and fills in direction, absolute quantity,
// P&L, advisory warnings and the dedup fingerprint
func (w *TradeWriter) Canonicalize(trade *models.Trade) error {
	trade.Symbol = strings.ToUpper(strings.TrimSpace(trade.Symbol))
	if trade.Symbol == "" {
		return apperrors.NewRowError("symbol", "missing")
	}

	direction, hintUsed := canonicalDirection(trade.DirectionHint, trade.Direction, trade.Quantity)
	if trade.DirectionHint != "" && !hintUsed {
		trade.AddWarning(fmt.Sprintf("%s: unrecognised direction %q, derived %s from quantity", WarningDirectionHint, trade.DirectionHint, direction))
	}
	trade.Direction = direction
	trade.Quantity = trade.Quantity.Abs()

	if trade.Quantity.IsZero() {
		return apperrors.NewRowError("quantity", "must be non-zero")
	}

	trade.Fees = trade.Fees.Abs()
	w.applyPnL(trade)
	trade.Fingerprint = Fingerprint(trade)

	return nil
}

// canonicalDirection prefers a recognised hint, then an already-set
// direction, then the sign of the quantity. hintUsed reports whether the hint
// decided the outcome.
func canonicalDirection(hint string, current types.Direction, quantity decimal.Decimal) (types.Direction, bool) {
	if dir, ok := types.ParseDirection(hint); ok {
		return dir, true
	}
	if current.Valid() {
		return current, false
	}
	if quantity.IsNegative() {
		return types.DirectionShort, false
	}
	return types.DirectionLong, false
}

// grossPnL is the price-move P&L before fees
func (w *TradeWriter) grossPnL(trade *models.Trade) decimal.Decimal {
	delta := trade.ExitPrice.Sub(trade.EntryPrice)
	if trade.Direction == types.DirectionShort && w.cfg.ShortConvention == types.ShortEntryMinusExit {
		delta = delta.Neg()
	}
	return delta.Mul(trade.Quantity)
}

func (w *TradeWriter) applyPnL(trade *models.Trade) {
	gross := w.grossPnL(trade)
	computed := gross.Sub(trade.Fees)

	if !trade.PnLSupplied {
		trade.PnL = computed
		return
	}

	// Without both prices there is nothing to compare against.
	if trade.EntryPrice.IsZero() || trade.ExitPrice.IsZero() {
		return
	}

	diff := trade.PnL.Sub(computed).Abs()
	relLimit := computed.Abs().Mul(w.cfg.RelTolerance)
	if diff.GreaterThan(w.cfg.AbsTolerance) && diff.GreaterThan(relLimit) {
		trade.AddWarning(fmt.Sprintf("%s: supplied %s, computed %s", WarningPnLMismatch, trade.PnL.String(), computed.String()))
	}

	// Supplied P&L is net of fees; adding them back recovers the gross sign
	// even when a contract multiplier scales the amount.
	suppliedGross := trade.PnL.Add(trade.Fees)
	if suppliedGross.Sign()*gross.Sign() < 0 {
		trade.AddWarning(fmt.Sprintf("%s: %s P&L %s is inconsistent with entry %s and exit %s",
			WarningPnLSign, trade.Direction, trade.PnL.String(), trade.EntryPrice.String(), trade.ExitPrice.String()))
	}
}

// Fingerprint returns the dedup key of a trade. With both fill ids it is
// derived from the fills alone; otherwise from the canonical trade fields.
func Fingerprint(trade *models.Trade) string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0x1f})
		}
	}

	if trade.HasFillIDs() {
		write("fills", trade.AccountID, *trade.BuyFillID, *trade.SellFillID)
		return "f:" + hex.EncodeToString(h.Sum(nil))
	}

	// Rows equal in every field below, untimed ones included, share a
	// fingerprint: a repeated row is a re-submission, not a second trade.
	write(
		"fields",
		trade.AccountID,
		trade.Symbol,
		string(trade.Direction),
		trade.Quantity.String(),
		trade.EntryPrice.String(),
		trade.ExitPrice.String(),
		trade.Fees.String(),
		trade.PnL.String(),
		formatOptionalTime(trade.EntryTime),
		formatOptionalTime(trade.ExitTime),
	)
	if !trade.DateFromClock {
		write(trade.TradeDate.UTC().Format("2006-01-02"))
	}
	return "c:" + hex.EncodeToString(h.Sum(nil))
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
