package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trade-analytics/internal/models"
	"github.com/trade-analytics/internal/service"
	"github.com/trade-analytics/internal/types"
)

// recomputeResponse is the JSON view of a recomputation
type recomputeResponse struct {
	UserID    string                                          `json:"userId"`
	Outcome   types.RecomputeOutcome                          `json:"outcome"`
	Snapshots map[types.MetricScope]*models.AnalyticsSnapshot `json:"snapshots,omitempty"`
	Error     string                                          `json:"error,omitempty"`
}

func newRecomputeResponse(result *service.RecomputeResult) *recomputeResponse {
	if result == nil {
		return nil
	}
	resp := &recomputeResponse{
		UserID:    result.UserID,
		Outcome:   result.Outcome,
		Snapshots: result.Snapshots,
	}
	if result.Err != nil {
		resp.Error = "recomputation failed; previous analytics were kept"
	}
	return resp
}

// handleGetAnalytics handles GET /api/analytics - All scopes for the user
func (s *Server) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	snapshots, err := s.analyticsService.GetSnapshots(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId":    userID,
		"snapshots": snapshots,
	})
}

// handleGetAnalyticsScope handles GET /api/analytics/{scope}
func (s *Server) handleGetAnalyticsScope(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	raw := mux.Vars(r)["scope"]
	scope, valid := types.ParseMetricScope(raw)
	if !valid {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidScope, "Unknown analytics scope", map[string]interface{}{
			"scope":   raw,
			"allowed": types.AllScopes,
		})
		return
	}

	snapshot, err := s.analyticsService.GetSnapshot(r.Context(), userID, scope)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleRecompute handles POST /api/analytics/recompute
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := s.recomputeService.Recompute(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, newRecomputeResponse(result))
}
