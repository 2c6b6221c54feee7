package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/logging"
	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/types"
)

// TradeRepository interface for trade management operations
type TradeRepository interface {
	List(ctx context.Context, userID string, filter *models.TradeFilter) ([]*models.Trade, error)
	GetByIDAndUser(ctx context.Context, id, userID string) (*models.Trade, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
	Update(ctx context.Context, trade *models.Trade) error
}

// CorrectTradeInput represents an explicit correction of a stored trade.
// Nil fields are left unchanged.
type CorrectTradeInput struct {
	UserID     string
	TradeID    string
	Symbol     *string
	Direction  *string
	Quantity   *decimal.Decimal
	EntryPrice *decimal.Decimal
	ExitPrice  *decimal.Decimal
	Fees       *decimal.Decimal
	PnL        *decimal.Decimal
}

func (in *CorrectTradeInput) changesPnLInputs() bool {
	return in.Direction != nil || in.Quantity != nil || in.EntryPrice != nil || in.ExitPrice != nil || in.Fees != nil
}

// TradeService lists, deletes and corrects trades; mutations trigger recomputation
type TradeService struct {
	trades  TradeRepository
	writer  *TradeWriter
	trigger *RecomputeTrigger
	logger  *logging.Logger
}

// NewTradeService creates a new trade service
func NewTradeService(trades TradeRepository, writer *TradeWriter, trigger *RecomputeTrigger, logger *logging.Logger) *TradeService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TradeService{
		trades:  trades,
		writer:  writer,
		trigger: trigger,
		logger:  logger.WithComponent("trade_service"),
	}
}

// ListTrades returns a filtered page of the user's trades
func (s *TradeService) ListTrades(ctx context.Context, userID string, filter *models.TradeFilter) ([]*models.Trade, error) {
	if userID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}
	if filter != nil && filter.Limit > 1000 {
		filter.Limit = 1000
	}

	trades, err := s.trades.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// DeleteTrade removes a trade and recomputes the user's analytics
func (s *TradeService) DeleteTrade(ctx context.Context, userID, tradeID string) (*RecomputeResult, error) {
	if userID == "" || tradeID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId and tradeId are required"}
	}

	deleted, err := s.trades.Delete(ctx, tradeID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete trade: %w", err)
	}
	if !deleted {
		return nil, tradeNotFound(tradeID)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"trade_id": tradeID,
	}).Info("trade deleted")

	return s.trigger.TriggerRecompute(ctx, userID, "trade_deleted"), nil
}

// CorrectTrade applies an explicit correction and recomputes analytics.
// P&L is recomputed when a price input changes and no P&L is supplied.
func (s *TradeService) CorrectTrade(ctx context.Context, input *CorrectTradeInput) (*models.Trade, error) {
	if input == nil || input.UserID == "" || input.TradeID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId and tradeId are required"}
	}

	trade, err := s.trades.GetByIDAndUser(ctx, input.TradeID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}
	if trade == nil {
		return nil, tradeNotFound(input.TradeID)
	}

	if input.Symbol != nil {
		trade.Symbol = *input.Symbol
	}
	trade.DirectionHint = ""
	if input.Direction != nil {
		if _, ok := types.ParseDirection(*input.Direction); !ok {
			return nil, apperrors.NewInvalidParameterError("direction", fmt.Sprintf("unrecognised direction %q", *input.Direction))
		}
		trade.DirectionHint = *input.Direction
	}
	if input.Quantity != nil {
		trade.Quantity = *input.Quantity
	}
	if input.EntryPrice != nil {
		trade.EntryPrice = *input.EntryPrice
	}
	if input.ExitPrice != nil {
		trade.ExitPrice = *input.ExitPrice
	}
	if input.Fees != nil {
		trade.Fees = *input.Fees
	}
	if input.PnL != nil {
		trade.PnL = *input.PnL
	}
	trade.PnLSupplied = input.PnL != nil || !input.changesPnLInputs()

	dropAdvisoryWarnings(trade)

	if err := s.writer.Canonicalize(trade); err != nil {
		var rowErr *apperrors.RowError
		if errors.As(err, &rowErr) {
			return nil, apperrors.NewInvalidParameterError(rowErr.Field, rowErr.Reason)
		}
		return nil, err
	}

	if err := s.trades.Update(ctx, trade); err != nil {
		if errors.Is(err, types.ErrDuplicateTrade) {
			return nil, apperrors.NewConflictError("TRADE_CONFLICT",
				"correction would duplicate an existing trade",
				map[string]interface{}{"tradeId": trade.ID})
		}
		return nil, fmt.Errorf("failed to update trade: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":  input.UserID,
		"trade_id": trade.ID,
	}).Info("trade corrected")

	s.trigger.TriggerRecompute(ctx, input.UserID, "trade_corrected")

	return trade, nil
}

// dropAdvisoryWarnings clears warnings that canonicalization will re-derive
func dropAdvisoryWarnings(trade *models.Trade) {
	if trade.Metadata == nil {
		return
	}
	kept := trade.Metadata.Warnings[:0]
	for _, w := range trade.Metadata.Warnings {
		if strings.HasPrefix(w, WarningPnLMismatch+":") || strings.HasPrefix(w, WarningPnLSign+":") || strings.HasPrefix(w, WarningDirectionHint+":") {
			continue
		}
		kept = append(kept, w)
	}
	trade.Metadata.Warnings = kept
}

func tradeNotFound(tradeID string) error {
	return apperrors.NewNotFoundError("trade", tradeID)
}
