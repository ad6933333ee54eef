package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/launchkit/pkg/binder"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/requestid"
)

// StatusCode maps err to the HTTP status it should be reported with.
// Binding failures are client errors.
func StatusCode(err error) int {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return http.StatusUnsupportedMediaType
	case binder.IsBindError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorHandler returns the JSON error handler used by Wrap. Client errors
// are logged at warn level, everything else at error level.
func NewErrorHandler(log *slog.Logger) ErrorHandler {
	if log == nil {
		log = logger.Noop()
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		status := StatusCode(err)

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			logger.Path(r.URL.Path),
			logger.Component("error_handler"),
		)

		var httpErr HTTPError
		if !errors.As(err, &httpErr) {
			httpErr = HTTPError{Code: status, Key: keyFor(status)}
		}
		if renderErr := JSONError(httpErr).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "failed to render error response",
				logger.Error(renderErr),
				logger.Component("error_handler"),
			)
		}
	}
}

func keyFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest.Key
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	default:
		return ErrInternalServerError.Key
	}
}
