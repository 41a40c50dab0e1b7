package utils

import (
	"errors"
	"net/http"

	"gorm.io/gorm"
)

type AppError struct {
	Code    string
	Message string
	Origin  error
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

const (
	ErrNotFound     = "NOT_FOUND"
	ErrInvalidInput = "INVALID_INPUT"
	ErrUnauthorized = "UNAUTHORIZED"
	ErrDuplicate    = "DUPLICATE"
	ErrDatabase     = "DATABASE"
)

func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: ErrNotFound, Message: message}
}

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code string) int {
	switch code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidInput:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError classifies err. Missing records become NOT_FOUND, anything unknown
// is treated as a store failure.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NewAppError(ErrNotFound, "Not found", err)
	}
	return NewAppError(ErrDatabase, "Internal server error", err)
}
