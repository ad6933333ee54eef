package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/launchkit/pkg/clientip"
	"github.com/dmitrymomot/launchkit/pkg/httpserver"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/requestid"
)

const readinessTimeout = 3 * time.Second

// module is a feature package that mounts its own routes.
type module interface {
	Register(r chi.Router)
}

type routerConfig struct {
	log *slog.Logger
	// gate runs on every request, including the ones no route matches.
	gate   func(http.Handler) http.Handler
	checks []httpserver.Check
	// throttled modules sit behind limit.
	limit     func(http.Handler) http.Handler
	throttled []module
	modules   []module
	// upstream serves allowed requests no module handles.
	upstream http.Handler
}

func newRouter(cfg routerConfig) http.Handler {
	if cfg.log == nil {
		cfg.log = logger.Noop()
	}
	if cfg.upstream == nil {
		cfg.upstream = http.NotFoundHandler()
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.Middleware)
	if cfg.gate != nil {
		r.Use(cfg.gate)
	}

	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(cfg.log, readinessTimeout, cfg.checks...))

	for _, m := range cfg.modules {
		m.Register(r)
	}
	if len(cfg.throttled) > 0 {
		r.Group(func(r chi.Router) {
			if cfg.limit != nil {
				r.Use(cfg.limit)
			}
			for _, m := range cfg.throttled {
				m.Register(r)
			}
		})
	}

	// GET /login and friends are pages of the app; only their form posts
	// are handled here.
	r.NotFound(cfg.upstream.ServeHTTP)
	r.MethodNotAllowed(cfg.upstream.ServeHTTP)
	return r
}

// newUpstream proxies to the application behind the gateway. An empty
// target answers 404.
func newUpstream(target string, log *slog.Logger) (http.Handler, error) {
	if target == "" {
		return http.NotFoundHandler(), nil
	}
	if log == nil {
		log = logger.Noop()
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errInvalidUpstream
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.ErrorContext(r.Context(), "upstream request failed",
			logger.Component("upstream"),
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}
