// Package gate is the auth middleware. It classifies every request path,
// resolves the session for protected and auth routes and either lets the
// request through or redirects it.
//
// The gate fails open: any error or panic while classifying, constructing
// the status resolver or resolving the session lets the request through
// unmodified. Availability wins over strict enforcement on infrastructure
// failure.
package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dmitrymomot/launchkit/pkg/authstatus"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
	"github.com/dmitrymomot/launchkit/pkg/routes"
)

var (
	ErrResolverUnavailable = errors.New("auth status resolver unavailable")
	ErrPanic               = errors.New("auth gate panicked")
)

// Action is the outcome of a gate decision.
type Action string

const (
	ActionAllow            Action = "allow"
	ActionRedirectLogin    Action = "redirect_login"
	ActionRedirectPostAuth Action = "redirect_post_auth"
)

// Decision is what the gate does with a request. Location is set for the
// redirect actions only.
type Decision struct {
	Action   Action
	Location *url.URL
	Kind     routes.Kind
	Status   authstatus.Status
}

// StatusResolver reports the authentication state of a request.
type StatusResolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) authstatus.Status
}

// ResolverFunc adapts a function to StatusResolver.
type ResolverFunc func(w http.ResponseWriter, r *http.Request) authstatus.Status

func (f ResolverFunc) Resolve(w http.ResponseWriter, r *http.Request) authstatus.Status {
	return f(w, r)
}

// ResolverFactory builds the resolver for a request. Construction errors
// make the gate fail open.
type ResolverFactory func(r *http.Request) (StatusResolver, error)

// Static returns a factory that always hands out res.
func Static(res StatusResolver) ResolverFactory {
	return func(*http.Request) (StatusResolver, error) {
		if res == nil {
			return nil, ErrResolverUnavailable
		}
		return res, nil
	}
}

type Dispatcher struct {
	classifier *routes.Classifier
	redirects  *redirect.Builder
	factory    ResolverFactory
	log        *slog.Logger
}

type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func New(classifier *routes.Classifier, redirects *redirect.Builder, factory ResolverFactory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		classifier: classifier,
		redirects:  redirects,
		factory:    factory,
		log:        logger.Noop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide computes the decision for r. A non-nil error always comes with an
// Allow decision.
func (d *Dispatcher) Decide(w http.ResponseWriter, r *http.Request) (dec Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			dec = Decision{Action: ActionAllow, Kind: dec.Kind}
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()

	kind := d.classifier.Classify(r.URL.Path)
	dec = Decision{Action: ActionAllow, Kind: kind}
	if kind != routes.KindProtected && kind != routes.KindAuth {
		return dec, nil
	}

	if d.factory == nil {
		return dec, ErrResolverUnavailable
	}
	resolver, err := d.factory(r)
	if err != nil {
		return dec, errors.Join(ErrResolverUnavailable, err)
	}
	if resolver == nil {
		return dec, ErrResolverUnavailable
	}

	st := resolver.Resolve(w, r)
	dec.Status = st
	if st.Error != "" {
		d.log.WarnContext(r.Context(), "auth status resolved with error",
			logger.Component("gate"),
			logger.RouteKind(string(kind)),
			logger.Path(r.URL.Path),
			slog.String("auth_error", st.Error),
		)
	}

	current := d.redirects.CurrentURL(r)
	switch {
	case kind == routes.KindProtected && !st.IsAuthenticated:
		dec.Action = ActionRedirectLogin
		dec.Location = d.redirects.LoginURL(current)
	case kind == routes.KindAuth && st.IsAuthenticated:
		dec.Action = ActionRedirectPostAuth
		dec.Location = d.redirects.PostAuthURL(current, r.URL.Query().Get(redirect.ReturnToParam))
	}
	return dec, nil
}

// Middleware applies Decide to every non-static request. Allowed requests
// carry the resolved Status on their context.
func (d *Dispatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if routes.IsStatic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		dec, err := d.Decide(w, r)
		if err != nil {
			d.log.WarnContext(r.Context(), "auth gate failed open",
				logger.Component("gate"),
				logger.Path(r.URL.Path),
				logger.Error(err),
			)
			next.ServeHTTP(w, r)
			return
		}

		switch dec.Action {
		case ActionRedirectLogin, ActionRedirectPostAuth:
			d.log.DebugContext(r.Context(), "auth gate redirect",
				logger.Component("gate"),
				logger.RouteKind(string(dec.Kind)),
				logger.Event(string(dec.Action)),
				slog.String("location", dec.Location.String()),
			)
			http.Redirect(w, r, dec.Location.String(), redirectStatus(r))
			return
		}

		if dec.Kind == routes.KindProtected || dec.Kind == routes.KindAuth {
			r = r.WithContext(authstatus.WithContext(r.Context(), dec.Status))
		}
		next.ServeHTTP(w, r)
	})
}

// redirectStatus keeps the method on GET and HEAD redirects. Form posts are
// turned into a GET of the target.
func redirectStatus(r *http.Request) int {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return http.StatusTemporaryRedirect
	}
	return http.StatusSeeOther
}
