package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/trade-analytics/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflict errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// RowError is a row-level import failure. It is reported in the batch result
// and never aborts the batch.
type RowError struct {
	Field  string
	Reason string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewRowError creates a row-level error for a field
func NewRowError(field, reason string) *RowError {
	return &RowError{Field: field, Reason: reason}
}

// IsRowError reports whether err is (or wraps) a row-level error
func IsRowError(err error) bool {
	var rowErr *RowError
	return errors.As(err, &rowErr)
}

// User Input Errors (4xx)

// NewInvalidBatchError creates a batch-level validation error
func NewInvalidBatchError(reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_BATCH",
		Message:    fmt.Sprintf("invalid import batch: %s", reason),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewBatchTooLargeError creates an error for batches above the configured row limit
func NewBatchTooLargeError(rows, limit int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       "BATCH_TOO_LARGE",
		Message:    fmt.Sprintf("batch has %d rows, limit is %d", rows, limit),
		Details: map[string]interface{}{
			"rows":  rows,
			"limit": limit,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewNotFoundError creates a not found error. The code is derived from the
// resource: "trade" yields TRADE_NOT_FOUND.
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       strings.ToUpper(resource) + "_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error with a domain code such as
// ACCOUNT_EXISTS or TRADE_CONFLICT
func NewConflictError(code, message string, details map[string]interface{}) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       code,
		Message:    message,
		Details:    details,
	}
}

// NewRateLimitError creates a rate limit error carrying the bucket settings
func NewRateLimitError(limit float64, burst int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded. Please try again later.",
		Details: map[string]interface{}{
			"limit": limit,
			"burst": burst,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	var rowErr *RowError
	if errors.As(err, &rowErr) {
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: http.StatusBadRequest,
			Code:       "INVALID_ROW",
			Message:    rowErr.Error(),
		}
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError

	switch err.Code {
	case "INVALID_BATCH", "INVALID_INPUT", "INVALID_PARAMETER", "INVALID_SCOPE":
		category, status = CategoryUserInput, http.StatusBadRequest
	case "ACCOUNT_NOT_FOUND", "TRADE_NOT_FOUND", "SNAPSHOT_NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	case "ACCOUNT_EXISTS", "TRADE_CONFLICT":
		category, status = CategoryConflict, http.StatusConflict
	case "UNAUTHORIZED":
		category, status = CategoryAuthorization, http.StatusUnauthorized
	}

	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
