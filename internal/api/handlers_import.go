package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/trade-analytics/internal/errors"
	"github.com/trade-analytics/internal/normalize"
	"github.com/trade-analytics/internal/service"
)

// requireUser returns the caller's user id or writes a 401
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		respondServiceError(w, apperrors.NewUnauthorizedError("User ID required"))
		return "", false
	}
	return userID, true
}

// limitBody caps the request body at the configured size
func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// handleImportBatch handles POST /api/imports - Import a batch of JSON rows
func (s *Server) handleImportBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s.limitBody(w, r)

	var req struct {
		AccountID *string         `json:"accountId,omitempty"`
		Broker    string          `json:"broker"`
		Rows      json.RawMessage `json:"rows"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidBatch, "Invalid request body", nil)
		return
	}

	rows, err := normalize.DecodeJSONRows(req.Rows)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidBatch, err.Error(), nil)
		return
	}

	result, err := s.importService.ImportBatch(r.Context(), &service.ImportBatchInput{
		UserID:    userID,
		AccountID: req.AccountID,
		Broker:    req.Broker,
		Rows:      rows,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleImportCSV handles POST /api/imports/csv - Import a broker CSV export.
// The body is the CSV itself, or a multipart form with a "file" part.
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	s.limitBody(w, r)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidBatch, "multipart upload must include a file part", nil)
			return
		}
		defer file.Close()
		body = file
	}

	rows, err := normalize.ParseCSVRows(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidBatch, err.Error(), nil)
		return
	}

	query := r.URL.Query()
	result, err := s.importService.ImportBatch(r.Context(), &service.ImportBatchInput{
		UserID:    userID,
		AccountID: optionalString(query.Get("accountId")),
		Broker:    query.Get("broker"),
		Rows:      rows,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// parseJSONBody decodes the request body, rejecting unknown fields
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
