// Package apperr defines the error taxonomy shared by the loader, the
// normalizer, the analysis tools and the agent.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrFileNotFound is returned when a source path does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrDelimiterUndetectable is returned when sniffing is inconclusive.
	ErrDelimiterUndetectable = errors.New("delimiter undetectable")
	// ErrUnsupportedFormat is returned when an input cannot be converted to a table.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMissingDependency is returned when a required backend is not available.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrEmptyDataset is returned when a numeric operation has nothing to work on.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrUnsupportedProvider is returned for an unknown model provider name.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrInvalidArgument covers bad parameters such as unknown columns.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned for unknown dataset sessions.
	ErrNotFound = errors.New("not found")
)

// HTTPStatus maps an error from the taxonomy to a response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrFileNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrEmptyDataset),
		errors.Is(err, ErrDelimiterUndetectable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingDependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
