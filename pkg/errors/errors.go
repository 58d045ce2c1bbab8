// Package errors defines the sentinel errors shared by the indexer and the
// search service, and maps them onto HTTP status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEmptyCorpus       = errors.New("corpus is empty")
	ErrStaleHistogram    = errors.New("histogram is not initialized")
	ErrNonFiniteScore    = errors.New("similarity is not finite")
	ErrTokenizer         = errors.New("tokenizer failure")
	ErrStoreUnavailable  = errors.New("corpus store unavailable")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
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

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
