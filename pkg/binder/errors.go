package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrFailedToParseForm    = errors.New("failed to parse form data")
	ErrFailedToParseQuery   = errors.New("failed to parse query parameters")
)

// IsBindError reports whether err came from one of the binders.
func IsBindError(err error) bool {
	return errors.Is(err, ErrUnsupportedMediaType) ||
		errors.Is(err, ErrMissingContentType) ||
		errors.Is(err, ErrFailedToParseJSON) ||
		errors.Is(err, ErrFailedToParseForm) ||
		errors.Is(err, ErrFailedToParseQuery)
}
