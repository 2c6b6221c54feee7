package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps a service-layer error onto an error response
func respondServiceError(w http.ResponseWriter, err error) {
	statusCode, code, message, details := mapServiceError(err)
	respondError(w, statusCode, code, message, details)
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInvalidBatch  = "INVALID_BATCH"
	ErrCodeInvalidScope  = "INVALID_SCOPE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// mapServiceError maps service errors to HTTP status codes. Details of
// server-side failures are not exposed.
func mapServiceError(err error) (int, string, string, map[string]interface{}) {
	catErr := apperrors.Categorize(err)
	if catErr == nil {
		return http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil
	}

	if !apperrors.IsUserError(catErr) {
		return catErr.StatusCode, catErr.Code, "An internal error occurred", nil
	}

	return catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details
}
