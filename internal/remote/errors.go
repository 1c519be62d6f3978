package remote

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorType classifies a remote-system failure. The type, not the Go error
// class, decides retry behavior and what the caller is told.
type ErrorType string

const (
	ErrValidation   ErrorType = "VALIDATION"
	ErrUnauthorized ErrorType = "UNAUTHORIZED"
	ErrNotFound     ErrorType = "NOT_FOUND"
	ErrConflict     ErrorType = "CONFLICT"
	ErrRateLimit    ErrorType = "RATE_LIMIT"
	ErrNetwork      ErrorType = "NETWORK"
	ErrServer       ErrorType = "SERVER_ERROR"
	ErrUnknown      ErrorType = "UNKNOWN"
)

// Error is a classified remote-system failure.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Type, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether a retry could ever succeed. Validation, auth,
// not-found and conflict failures are final: the remote system wins.
func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrValidation, ErrUnauthorized, ErrNotFound, ErrConflict:
		return false
	default:
		return true
	}
}

// NewError creates a classified error.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// WrapError creates a classified error wrapping a cause.
func WrapError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, cause: cause}
}

// ClassifyStatus maps a non-success HTTP status to an error type.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status >= 400 && status < 500:
		return ErrValidation
	case status >= 500:
		return ErrServer
	default:
		return ErrUnknown
	}
}

// userMessages are what leaves this package after retry exhaustion. Raw
// remote responses can carry endpoint paths, credential hints and stack
// fragments; none of that may reach a caller.
var userMessages = map[ErrorType]string{
	ErrValidation:   "the request was rejected by the membership system",
	ErrUnauthorized: "not authorized for this operation",
	ErrNotFound:     "the requested record was not found",
	ErrConflict:     "the record was changed in the membership system",
	ErrRateLimit:    "too many requests, please retry shortly",
	ErrNetwork:      "the membership system is unreachable",
	ErrServer:       "the membership system reported an internal error",
	ErrUnknown:      "an unexpected error occurred",
}

// Sanitize strips internal detail from a classified error, keeping the type
// and status for callers that branch on them.
func Sanitize(err *Error) *Error {
	msg, ok := userMessages[err.Type]
	if !ok {
		msg = userMessages[ErrUnknown]
	}
	return &Error{
		Type:       err.Type,
		Message:    msg,
		StatusCode: err.StatusCode,
		RetryAfter: err.RetryAfter,
	}
}
