package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/moment-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryChain represents failures talking to the chain access node or indexer
	CategoryChain ErrorCategory = "chain"
	// CategoryMarket represents market quote failures
	CategoryMarket ErrorCategory = "market"
	// CategoryPayload represents unreadable event payloads
	CategoryPayload ErrorCategory = "payload"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
)

// ErrNoCollectionFound signals a wallet without moments. Callers treat it as
// an empty result, never as a failure.
var ErrNoCollectionFound = errors.New("no collection found")

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

// User Input Errors (4xx)

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
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

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Chain, market and payload errors

// ChainQueryError is returned once the chain client has exhausted its retries.
// LastStatus is the last HTTP status observed, 0 for transport failures.
type ChainQueryError struct {
	Operation  string
	LastStatus int
	Attempts   int
	Cause      error
}

func (e *ChainQueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chain query %s failed after %d attempts (last status %d): %v", e.Operation, e.Attempts, e.LastStatus, e.Cause)
	}
	return fmt.Sprintf("chain query %s failed after %d attempts (last status %d)", e.Operation, e.Attempts, e.LastStatus)
}

func (e *ChainQueryError) Unwrap() error {
	return e.Cause
}

// NewChainQueryError creates a chain query error
func NewChainQueryError(operation string, lastStatus, attempts int, cause error) *ChainQueryError {
	return &ChainQueryError{
		Operation:  operation,
		LastStatus: lastStatus,
		Attempts:   attempts,
		Cause:      cause,
	}
}

// IsChainQueryError reports whether err carries a ChainQueryError
func IsChainQueryError(err error) bool {
	var cqe *ChainQueryError
	return errors.As(err, &cqe)
}

// NewMarketDataUnavailableError creates a market data unavailable error.
// It never leaves the market package; the resolver degrades to an estimate.
func NewMarketDataUnavailableError(momentID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMarket,
		StatusCode: http.StatusBadGateway,
		Code:       "MARKET_DATA_UNAVAILABLE",
		Message:    fmt.Sprintf("market data unavailable for moment %s", momentID),
		Cause:      cause,
		Details: map[string]interface{}{
			"momentId": momentID,
		},
	}
}

// NewMalformedEventPayloadError creates an error for an event payload that cannot be read
func NewMalformedEventPayloadError(eventType string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPayload,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "MALFORMED_EVENT_PAYLOAD",
		Message:    fmt.Sprintf("malformed payload for event %s: %s", eventType, reason),
		Details: map[string]interface{}{
			"eventType": eventType,
			"reason":    reason,
		},
	}
}

// IsCode reports whether err is a CategorizedError with the given code
func IsCode(err error, code string) bool {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Code == code
	}
	return false
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

	var chainErr *ChainQueryError
	if errors.As(err, &chainErr) {
		return &CategorizedError{
			Category:   CategoryChain,
			StatusCode: http.StatusBadGateway,
			Code:       "CHAIN_QUERY_FAILED",
			Message:    fmt.Sprintf("chain query %s failed", chainErr.Operation),
			Cause:      err,
			Details: map[string]interface{}{
				"operation":  chainErr.Operation,
				"lastStatus": chainErr.LastStatus,
				"attempts":   chainErr.Attempts,
			},
		}
	}

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case "INVALID_ADDRESS", "INVALID_INPUT", "INVALID_PARAMETER":
		category, status = CategoryUserInput, http.StatusBadRequest
	case "NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}
