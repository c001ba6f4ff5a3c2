package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the error shape rendered to API and page consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches two AppErrors by code so copies made by WithInternal still compare equal.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError carrying err.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError with a different client-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Message = message
	return &cpy
}

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	// ErrFeatureDisabled is returned when a platform tool is switched off.
	ErrFeatureDisabled = &AppError{
		Code:       "FEATURE_DISABLED",
		Message:    "This tool is not available",
		StatusCode: http.StatusForbidden,
	}

	// ErrCSRFInvalid is returned when a form or header token does not match the cookie.
	ErrCSRFInvalid = &AppError{
		Code:       "CSRF_INVALID",
		Message:    "Invalid or missing CSRF token",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Resource already exists",
		StatusCode: http.StatusConflict,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds an application error.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into a 500 AppError, keeping the cause for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts err into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest returns a 400 with a custom message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}

// NewConflict returns a 409 with a custom message.
func NewConflict(message string) *AppError {
	return ErrConflict.WithMessage(message)
}
