package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/launchkit/pkg/async"
	"github.com/dmitrymomot/launchkit/pkg/logger"
)

// Check is a named readiness dependency.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// LivenessHandler always answers 200 ALIVE.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	}
}

// ReadinessHandler runs every check concurrently with the given timeout and
// answers 200 READY when all pass, or 503 NOT_READY after logging the first failure.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Noop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		futures := make([]*async.Future[struct{}], 0, len(checks))
		for _, c := range checks {
			futures = append(futures, async.Go(ctx, func(ctx context.Context) (struct{}, error) {
				if err := c.Fn(ctx); err != nil {
					return struct{}{}, fmt.Errorf("%s: %w", c.Name, err)
				}
				return struct{}{}, nil
			}))
		}

		if _, err := async.WaitAll(futures...); err != nil {
			log.ErrorContext(ctx, "readiness check failed",
				logger.Component("httpserver"),
				logger.Error(err),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
