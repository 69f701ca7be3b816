// Package errors defines the sentinel errors shared by the index, query and
// service layers, and the AppError wrapper that attaches a message and an
// HTTP status to one of them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDuplicateID         = errors.New("document already exists")
	ErrInvalidDocumentID   = errors.New("invalid document id")
	ErrSchemaMismatch      = errors.New("schema validation failure")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrUnknownProperty     = errors.New("unknown property")
	ErrUnknownSortField    = errors.New("unable to sort on unknown field")
	ErrSortDisabled        = errors.New("sorting is disabled")
	ErrUnsupportedFacet    = errors.New("unsupported facet")
	ErrInvalidFilter       = errors.New("invalid where filter")
	ErrInvalidSnapshot     = errors.New("invalid snapshot")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownCollection   = errors.New("unknown collection")
	ErrInternal            = errors.New("internal error")
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

// Config builds a 400-class error for a request that is rejected before any
// work is done.
func Config(sentinel error, format string, args ...any) *AppError {
	return Newf(sentinel, http.StatusBadRequest, format, args...)
}

// IsConfigError reports whether err was raised while validating a request,
// before any index was read or mutated.
func IsConfigError(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownProperty),
		errors.Is(err, ErrUnknownSortField),
		errors.Is(err, ErrSortDisabled),
		errors.Is(err, ErrUnsupportedFacet),
		errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrUnsupportedLanguage):
		return true
	}
	return false
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrUnknownCollection):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, ErrSchemaMismatch), errors.Is(err, ErrInvalidDocumentID):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidSnapshot), IsConfigError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
