// Package errors defines the sentinel errors shared across the searcher and
// maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDocumentLoad marks any failure to materialize document text: a
	// missing, unreadable or undecodable source.
	ErrDocumentLoad     = errors.New("document load failed")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotReady         = errors.New("index not ready")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// InvalidArgumentf returns a 400 AppError wrapping ErrInvalidArgument.
func InvalidArgumentf(format string, args ...any) *AppError {
	return Newf(ErrInvalidArgument, http.StatusBadRequest, format, args...)
}

// Internalf returns a 500 AppError wrapping ErrInternal.
func Internalf(format string, args ...any) *AppError {
	return Newf(ErrInternal, http.StatusInternalServerError, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
