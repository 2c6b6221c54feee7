package api

import (
	"net/http"

	"github.com/trade-analytics/internal/service"
)

// handleCreateAccount handles POST /api/accounts - Create a named account
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Name   string `json:"name"`
		Broker string `json:"broker"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	account, err := s.accountService.CreateAccount(r.Context(), &service.CreateAccountInput{
		UserID: userID,
		Name:   req.Name,
		Broker: req.Broker,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, account)
}

// handleListAccounts handles GET /api/accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	accounts, err := s.accountService.ListAccounts(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}
