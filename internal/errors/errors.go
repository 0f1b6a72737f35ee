package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of application error
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Authentication and access-control errors
	ErrCodeRateLimited       ErrorCode = "RATE_LIMITED"
	ErrCodeLocked            ErrorCode = "LOCKED"
	ErrCodeInvalidCredential ErrorCode = "INVALID_CREDENTIAL"
	ErrCodeSessionInvalid    ErrorCode = "SESSION_INVALID"

	// Infrastructure errors
	ErrCodeStorageFailure  ErrorCode = "STORAGE_FAILURE"
	ErrCodeCacheConnection ErrorCode = "CACHE_CONNECTION_ERROR"
)

// ErrorSeverity classifies how urgent an error is operationally
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError is the structured error carried through the request path.
// Authentication failures are expected outcomes and travel as values;
// storage failures are infrastructure faults and must stay distinguishable
// so callers never conflate "wrong password" with "database unreachable".
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status.
// InvalidCredential, Locked and SessionInvalid all map to 401 so the
// response never hints which factor was wrong; RateLimited is the one
// rejection a client is allowed to tell apart.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeInvalidCredential, ErrCodeLocked, ErrCodeSessionInvalid:
		return http.StatusUnauthorized
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  getSeverityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext attaches a key/value pair for logging
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRequestID attaches the request ID
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

func getSeverityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal, ErrCodeStorageFailure:
		return SeverityCritical
	case ErrCodeCacheConnection, ErrCodeLocked, ErrCodeRateLimited:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Predefined errors for the access-control outcomes. The message for
// credential failures is deliberately generic: wrong password, unknown key,
// revoked key and malformed key are all reported identically to prevent
// enumeration.
var (
	ErrRateLimited       = NewAppError(ErrCodeRateLimited, "Too many requests", nil)
	ErrLocked            = NewAppError(ErrCodeLocked, "Not authorized", nil)
	ErrInvalidCredential = NewAppError(ErrCodeInvalidCredential, "Not authorized", nil)
	ErrSessionInvalid    = NewAppError(ErrCodeSessionInvalid, "Not authorized", nil)
	ErrInternalServer    = NewAppError(ErrCodeInternal, "Internal server error", nil)
	ErrInvalidInput      = NewAppError(ErrCodeInvalidInput, "Invalid input parameters", nil)
	ErrNotFound          = NewAppError(ErrCodeNotFound, "Resource not found", nil)
)

// NewStorageFailure wraps a database error so it propagates as an
// infrastructure fault rather than an authentication failure.
func NewStorageFailure(op string, cause error) *AppError {
	return NewAppError(ErrCodeStorageFailure, "Storage operation failed", cause).
		WithContext("operation", op)
}

// WrapError wraps a standard error into an application error
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewAppError(code, message, err)
}

// IsAppError checks whether err is an application error
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts the application error if present
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return nil
}

// IsCode reports whether err is an AppError with the given code
func IsCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
