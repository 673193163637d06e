package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes
const (
	CodeAppError    = "APP_ERROR"
	CodeAPIError    = "API_ERROR"
	CodeValidation  = "VALIDATION_ERROR"
	CodeCache       = "CACHE_ERROR"
	CodeService     = "SERVICE_ERROR"
	CodeStore       = "STORE_ERROR"
	CodeCircuitOpen = "CIRCUIT_OPEN"
	CodeNotFound    = "NOT_FOUND"
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus is promoted to every error type embedding AppError.
func (e *AppError) HTTPStatus() int {
	return e.StatusCode
}

// ErrorCode is promoted to every error type embedding AppError.
func (e *AppError) ErrorCode() string {
	return e.Code
}

func NewAppError(message, code string, statusCode int, context map[string]any) *AppError {
	return &AppError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

type APIError struct {
	*AppError
}

func NewAPIError(message string, statusCode int, context map[string]any) *APIError {
	return &APIError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context:    context,
		},
	}
}

type ValidationError struct {
	*AppError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: http.StatusBadRequest,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*AppError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeService,
			StatusCode: http.StatusServiceUnavailable,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

type StoreError struct {
	*AppError
	Operation string
}

func NewStoreError(message, operation string, cause error) *StoreError {
	return &StoreError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeStore,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"operation": operation,
			},
			Cause: cause,
		},
		Operation: operation,
	}
}

// CircuitOpenError is returned while the model circuit breaker rejects calls.
type CircuitOpenError struct {
	*APIError
	NextRetry *time.Time
}

func NewCircuitOpenError(failureCount int, nextRetry *time.Time) *CircuitOpenError {
	retry := "unknown"
	if nextRetry != nil {
		retry = nextRetry.UTC().Format(time.RFC3339)
	}
	return &CircuitOpenError{
		APIError: &APIError{
			AppError: &AppError{
				Message:    fmt.Sprintf("model service unavailable, circuit open until %s", retry),
				Code:       CodeCircuitOpen,
				StatusCode: http.StatusServiceUnavailable,
				Context: map[string]any{
					"failure_count": failureCount,
					"next_retry":    retry,
				},
			},
		},
		NextRetry: nextRetry,
	}
}

// StatusOf returns the HTTP status carried by the first typed error in the chain,
// or fallback when there is none.
func StatusOf(err error, fallback int) int {
	var sc interface{ HTTPStatus() int }
	if stderrors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return sc.HTTPStatus()
	}
	return fallback
}

// CodeOf returns the error code carried by the first typed error in the chain.
func CodeOf(err error, fallback string) string {
	var ec interface{ ErrorCode() string }
	if stderrors.As(err, &ec) && ec.ErrorCode() != "" {
		return ec.ErrorCode()
	}
	return fallback
}
