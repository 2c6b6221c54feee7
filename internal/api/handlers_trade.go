package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/service"
)

// parseTimeParam accepts RFC3339 or a bare YYYY-MM-DD date
func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// handleListTrades handles GET /api/trades
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := &models.TradeFilter{
		AccountID: optionalString(query.Get("accountId")),
		Symbol:    optionalString(query.Get("symbol")),
		Limit:     100,
	}

	var err error
	if filter.From, err = parseTimeParam(query.Get("from")); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid 'from' parameter", nil)
		return
	}
	if filter.To, err = parseTimeParam(query.Get("to")); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid 'to' parameter", nil)
		return
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 1000 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Limit must be between 1 and 1000", nil)
			return
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Offset must be non-negative", nil)
			return
		}
		filter.Offset = offset
	}

	trades, err := s.tradeService.ListTrades(r.Context(), userID, filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleDeleteTrade handles DELETE /api/trades/{id}
func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	tradeID := mux.Vars(r)["id"]
	result, err := s.tradeService.DeleteTrade(r.Context(), userID, tradeID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":   true,
		"tradeId":   tradeID,
		"recompute": newRecomputeResponse(result),
	})
}

// handleCorrectTrade handles PATCH /api/trades/{id} - Apply an explicit correction
func (s *Server) handleCorrectTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Symbol     *string          `json:"symbol,omitempty"`
		Direction  *string          `json:"direction,omitempty"`
		Quantity   *decimal.Decimal `json:"quantity,omitempty"`
		EntryPrice *decimal.Decimal `json:"entryPrice,omitempty"`
		ExitPrice  *decimal.Decimal `json:"exitPrice,omitempty"`
		Fees       *decimal.Decimal `json:"fees,omitempty"`
		PnL        *decimal.Decimal `json:"pnl,omitempty"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	trade, err := s.tradeService.CorrectTrade(r.Context(), &service.CorrectTradeInput{
		UserID:     userID,
		TradeID:    mux.Vars(r)["id"],
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Quantity:   req.Quantity,
		EntryPrice: req.EntryPrice,
		ExitPrice:  req.ExitPrice,
		Fees:       req.Fees,
		PnL:        req.PnL,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, trade)
}
