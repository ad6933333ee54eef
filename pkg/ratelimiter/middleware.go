package ratelimiter

import (
	"context"
	"hash/fnv"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/launchkit/pkg/clientip"
	"github.com/dmitrymomot/launchkit/pkg/logger"
)

// maxKeyLength caps stored keys; longer composites are hashed.
const maxKeyLength = 64

// KeyFunc extracts a rate limit key from the request. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// ByIP keys on the client address.
func ByIP(r *http.Request) string {
	return clientip.GetIP(r)
}

// ByPath keys on the route path so each endpoint has its own budget.
func ByPath(r *http.Request) string {
	return r.URL.Path
}

// Composite joins the non-empty keys of fns, hashing long results with FNV-1a.
func Composite(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(fns))
		for _, fn := range fns {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}
		if len(parts) == 0 {
			return ""
		}
		combined := strings.Join(parts, ":")
		if len(combined) <= maxKeyLength {
			return combined
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(combined))
		return strconv.FormatUint(h.Sum64(), 36)
	}
}

// Limiter is satisfied by Bucket.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

type middlewareConfig struct {
	onLimit http.Handler
	log     *slog.Logger
	all     bool
	now     func() time.Time
}

type MiddlewareOption func(*middlewareConfig)

// WithLimitHandler replaces the plain 429 response sent to throttled clients.
func WithLimitHandler(h http.Handler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.onLimit = h
		}
	}
}

func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithAllMethods limits safe methods too. By default GET, HEAD and OPTIONS
// pass through untouched.
func WithAllMethods() MiddlewareOption {
	return func(c *middlewareConfig) { c.all = true }
}

// Middleware throttles requests per key. Store failures let the request
// through.
func Middleware(l Limiter, key KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		onLimit: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
		log: logger.Noop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.all && isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), k)
			if err != nil {
				cfg.log.WarnContext(r.Context(), "rate limiter unavailable",
					logger.Component("ratelimiter"),
					logger.Path(r.URL.Path),
					logger.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				retry := res.RetryAfter(cfg.now())
				w.Header().Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
				cfg.log.WarnContext(r.Context(), "rate limit exceeded",
					logger.Component("ratelimiter"),
					logger.Path(r.URL.Path),
					logger.Duration(retry),
				)
				cfg.onLimit.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
