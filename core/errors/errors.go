package errors

import (
	"fmt"
	"time"
)

type ErrorCode string

const (
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

// AppError is the error type carried across service boundaries. Controllers
// map Code to an HTTP status; Err keeps the wrapped cause for logging.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error

	// RetryAfter is set only for ErrRateLimited.
	RetryAfter time.Duration
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewRateLimitError builds an ErrRateLimited error carrying the duration the
// caller should wait before retrying.
func NewRateLimitError(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       ErrRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
	}
}
