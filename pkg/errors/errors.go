package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"streamcast/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError carries an error code and the HTTP status handlers should return.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new application error
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with an application error
func Wrap(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Cause: err}
}

// FromDomain maps domain sentinel errors onto HTTP-facing app errors.
func FromDomain(err error) *AppError {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, domain.ErrInvalidCredential):
		return Wrap(err, ErrCodeUnauthorized, "invalid stream credential", http.StatusUnauthorized)
	case stderrors.Is(err, domain.ErrAlreadyLive):
		return Wrap(err, ErrCodeConflict, "stream key already publishing", http.StatusConflict)
	case stderrors.Is(err, domain.ErrStreamNotFound):
		return Wrap(err, ErrCodeNotFound, "stream not found", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrMessageTooLong), stderrors.Is(err, domain.ErrMissingField):
		return Wrap(err, ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	default:
		return Wrap(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

// GetAppError extracts an AppError from an error chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
