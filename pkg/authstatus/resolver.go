package authstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/logger"
)

// DefaultTimeout bounds each identity provider call made during resolution.
const DefaultTimeout = 5 * time.Second

// SessionStore loads and persists the provider session for a request.
type SessionStore interface {
	Load(r *http.Request) (*identity.Session, error)
	Save(w http.ResponseWriter, sess *identity.Session) error
	Clear(w http.ResponseWriter)
}

// Resolver turns request cookies into a Status.
type Resolver struct {
	auth    identity.Authenticator
	store   SessionStore
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

type Option func(*Resolver)

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewResolver(auth identity.Authenticator, store SessionStore, opts ...Option) *Resolver {
	r := &Resolver{
		auth:    auth,
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     logger.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reports the authentication state of req. An expired access token
// is refreshed when a refresh token is available and the new session is
// written to w. w may be nil, in which case nothing is written.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) (st Status) {
	defer func() {
		if rec := recover(); rec != nil {
			st = Status{Error: fmt.Sprintf("auth status resolution panicked: %v", rec)}
		}
	}()

	sess, err := r.store.Load(req)
	if err != nil || sess == nil {
		return Status{}
	}

	ctx, cancel := context.WithTimeout(req.Context(), r.timeout)
	defer cancel()

	if sess.Expired(r.now()) {
		return r.refresh(ctx, w, sess)
	}

	user, err := r.auth.GetUser(ctx, sess.AccessToken)
	if err != nil {
		r.log.DebugContext(ctx, "session lookup failed",
			logger.Component("authstatus"),
			logger.Error(err),
		)
		return Status{Session: sess, Error: Describe(err)}
	}
	return Derive(user, sess, r.now())
}

func (r *Resolver) refresh(ctx context.Context, w http.ResponseWriter, sess *identity.Session) Status {
	if sess.RefreshToken == "" {
		return Status{Session: sess, Error: "Session expired"}
	}

	fresh, user, err := r.auth.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		if w != nil && errors.Is(err, identity.ErrInvalidGrant) {
			r.store.Clear(w)
		}
		return Status{Session: sess, Error: "Session expired: " + Describe(err)}
	}

	if w != nil {
		if err := r.store.Save(w, fresh); err != nil {
			r.log.WarnContext(ctx, "failed to persist refreshed session",
				logger.Component("authstatus"),
				logger.Error(err),
			)
		}
	}

	st := Derive(user, fresh, r.now())
	st.Refreshed = true
	r.log.DebugContext(ctx, "session refreshed",
		logger.Component("authstatus"),
		logger.UserID(st.UserID()),
	)
	return st
}

// Describe turns a provider error into the short description carried in
// Status.Error.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, identity.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "Identity provider timeout"
	case errors.Is(err, identity.ErrNetwork):
		return "Network error contacting identity provider"
	case errors.Is(err, identity.ErrUnauthorized), errors.Is(err, identity.ErrInvalidGrant):
		return "Invalid or expired session"
	case errors.Is(err, identity.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	}
	return err.Error()
}
