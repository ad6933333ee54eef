// Package callback serves GET /auth/callback, the URL the identity provider
// sends the browser back to after OAuth sign-in, email confirmation and
// password recovery.
package callback

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/launchkit/handler"
	"github.com/dmitrymomot/launchkit/pkg/binder"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/linking"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
)

const (
	DefaultPath         = "/auth/callback"
	LinkAccountPath     = "/auth/link-account"
	ProfileSetupPath    = "/profile/setup"
	UpdatePasswordPath  = "/update-password"
	DefaultSignupWindow = 60 * time.Second
)

// Callback types sent by the identity provider in the type parameter.
const (
	TypeSignup   = "signup"
	TypeRecovery = "recovery"
)

// Request is the callback query string.
type Request struct {
	Code             string `query:"code"`
	TokenHash        string `query:"token_hash"`
	Next             string `query:"next"`
	Error            string `query:"error"`
	ErrorDescription string `query:"error_description"`
	Type             string `query:"type"`
}

// Exchanger turns the callback credentials into a session: a PKCE code for
// OAuth sign-ins, a token hash for email links.
type Exchanger interface {
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (*identity.Session, *identity.User, error)
	VerifyEmailLink(ctx context.Context, kind, tokenHash, redirectTo string) (*identity.Session, *identity.User, error)
}

type Sessions interface {
	TakeVerifier(w http.ResponseWriter, r *http.Request) (string, error)
	Save(w http.ResponseWriter, sess *identity.Session) error
}

type LinkChecker interface {
	Check(ctx context.Context, email, provider, newUserID string) (linking.Decision, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, c linking.Claims) (string, error)
}

// Provisioner schedules best-effort background provisioning.
type Provisioner interface {
	ProvisionCustomer(ctx context.Context, user *identity.User)
	ProvisionAccount(ctx context.Context, user *identity.User)
}

type Handler struct {
	auth      Exchanger
	sessions  Sessions
	linker    LinkChecker
	tokens    TokenIssuer
	provision Provisioner
	redirects *redirect.Builder
	log       *slog.Logger
	now       func() time.Time
	window    time.Duration
	serve     http.HandlerFunc
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithSignupWindow sets how recently an account must have been created for
// an OAuth sign-in to count as a new signup.
func WithSignupWindow(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.window = d
		}
	}
}

// WithProvisioner enables customer and profile provisioning.
func WithProvisioner(p Provisioner) Option {
	return func(h *Handler) {
		h.provision = p
	}
}

func New(
	auth Exchanger,
	sessions Sessions,
	linker LinkChecker,
	tokens TokenIssuer,
	redirects *redirect.Builder,
	opts ...Option,
) *Handler {
	h := &Handler{
		auth:      auth,
		sessions:  sessions,
		linker:    linker,
		tokens:    tokens,
		redirects: redirects,
		log:       logger.Noop(),
		now:       time.Now,
		window:    DefaultSignupWindow,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.serve = handler.Wrap(h.handle,
		handler.WithBinders(binder.Query()),
		handler.WithErrorHandler(h.fail),
	)
	return h
}

// Register mounts the callback route on r.
func (h *Handler) Register(r chi.Router) {
	r.Get(DefaultPath, h.ServeHTTP)
}

// ServeHTTP answers every callback with a 303 redirect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r)
}

// fail renders binding or rendering errors as the generic login error.
func (h *Handler) fail(ctx handler.Context, err error) {
	r := ctx.Request()
	h.log.ErrorContext(r.Context(), "auth callback failed",
		logger.Handler("auth_callback"),
		logger.Error(err),
	)
	target := redirect.WithError(h.redirects.Login(h.redirects.CurrentURL(r)), MsgUnexpected)
	http.Redirect(ctx.ResponseWriter(), r, target.String(), http.StatusSeeOther)
}

func (h *Handler) handle(ctx handler.Context, req Request) (resp handler.Response) {
	r := ctx.Request()
	defer func() {
		if rec := recover(); rec != nil {
			h.log.ErrorContext(ctx, "auth callback panicked",
				logger.Handler("auth_callback"),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			resp = handler.Redirect(redirect.DefaultLoginPath + "?" + url.Values{redirect.ErrorParam: {MsgUnexpected}}.Encode())
		}
	}()

	current := h.redirects.CurrentURL(r)
	login := h.redirects.Login(current)

	if req.Error != "" {
		h.log.WarnContext(ctx, "oauth provider returned an error",
			logger.Handler("auth_callback"),
			slog.String("oauth_error", req.Error),
			slog.String("oauth_error_description", req.ErrorDescription),
		)
		return handler.RedirectURL(redirect.WithError(login, OAuthErrorMessage(req.Error, req.ErrorDescription)))
	}

	emailLink := req.TokenHash != "" && req.Type != ""
	if req.Code == "" && !emailLink {
		h.log.WarnContext(ctx, "auth callback without code or error",
			logger.Handler("auth_callback"),
			logger.Path(r.URL.Path),
		)
		return handler.RedirectURL(redirect.WithError(login, MsgInvalidRequest))
	}

	var (
		sess *identity.Session
		user *identity.User
		err  error
	)
	if req.Code != "" {
		// A missing verifier is reported by the exchange itself.
		verifier, _ := h.sessions.TakeVerifier(ctx.ResponseWriter(), r)
		sess, user, err = h.auth.ExchangeCodeForSession(ctx, req.Code, verifier)
	} else {
		sess, user, err = h.auth.VerifyEmailLink(ctx, req.Type, req.TokenHash, h.redirects.Path(current, DefaultPath).String())
	}
	if err != nil || sess == nil || user == nil {
		credential := req.Code
		if credential == "" {
			credential = req.TokenHash
		}
		h.log.ErrorContext(ctx, "code exchange failed",
			logger.Handler("auth_callback"),
			slog.String("code", codeFragment(credential)),
			slog.String("type", req.Type),
			logger.Error(err),
		)
		return handler.RedirectURL(redirect.WithError(login, ExchangeErrorMessage(err)))
	}

	switch {
	case req.Type == TypeRecovery:
		return h.signedIn(ctx, sess, user, h.redirects.Path(current, UpdatePasswordPath))

	case h.isNewOAuthSignup(user):
		return h.oauthSignup(ctx, current, sess, user)

	case req.Type == TypeSignup:
		h.provisionAccount(ctx, user)
		next := h.redirects.PostAuthURL(current, req.Next)
		return h.signedIn(ctx, sess, user, redirect.WithMessage(next, MsgEmailConfirmed))

	default:
		next := h.redirects.PostAuthURL(current, req.Next)
		return h.signedIn(ctx, sess, user, redirect.WithMessage(next, MsgSignedIn))
	}
}

// isNewOAuthSignup reports whether user was created within the signup window
// by a non-email provider.
func (h *Handler) isNewOAuthSignup(user *identity.User) bool {
	if user.CreatedAt.IsZero() || len(user.OAuthProviders()) == 0 {
		return false
	}
	return h.now().Sub(user.CreatedAt) < h.window
}

func (h *Handler) oauthSignup(ctx handler.Context, current *url.URL, sess *identity.Session, user *identity.User) handler.Response {
	login := h.redirects.Login(current)
	provider := user.OAuthProviders()[0]

	dec, err := h.linker.Check(ctx, user.Email, provider, user.ID)
	if err != nil {
		// Linking is advisory; a failed lookup lets the signup continue.
		h.log.WarnContext(ctx, "account linking check failed",
			logger.Handler("auth_callback"),
			logger.UserID(user.ID),
			logger.Provider(provider),
			logger.Error(err),
		)
		dec = linking.Decision{}
	}

	switch {
	case dec.NeedsLinking:
		tok, err := h.tokens.Issue(ctx, linking.Claims{
			Email:          user.Email,
			Provider:       provider,
			ExistingUserID: dec.ExistingUserID,
			NewUserID:      user.ID,
		})
		if err != nil {
			h.log.ErrorContext(ctx, "failed to issue linking token",
				logger.Handler("auth_callback"),
				logger.UserID(user.ID),
				logger.Error(err),
			)
			return handler.RedirectURL(redirect.WithError(login, MsgLinkingUnavailable))
		}
		target := h.redirects.Path(current, LinkAccountPath)
		target = redirect.WithParam(target, "token", tok)
		target = redirect.WithParam(target, "provider", provider)
		target = redirect.WithParam(target, "email", user.Email)
		return handler.RedirectURL(target)

	case dec.Conflict():
		h.log.InfoContext(ctx, "oauth signup blocked by existing account",
			logger.Handler("auth_callback"),
			logger.UserID(user.ID),
			logger.Provider(provider),
			slog.String("conflict_type", string(dec.ConflictType)),
		)
		// Signing in with the provider already on file is guidance, not a failure.
		if dec.ConflictType == linking.ConflictOAuthExists {
			return handler.RedirectURL(redirect.WithMessage(login, dec.Message))
		}
		return handler.RedirectURL(redirect.WithError(login, dec.Message))
	}

	if h.provision != nil {
		h.provision.ProvisionCustomer(ctx, user)
	}
	setup := redirect.WithMessage(h.redirects.Path(current, ProfileSetupPath), MsgWelcome)
	return h.signedIn(ctx, sess, user, setup)
}

func (h *Handler) provisionAccount(ctx context.Context, user *identity.User) {
	if h.provision != nil {
		h.provision.ProvisionAccount(ctx, user)
	}
}

// signedIn stores the session cookie and redirects to target.
func (h *Handler) signedIn(ctx handler.Context, sess *identity.Session, user *identity.User, target *url.URL) handler.Response {
	if err := h.sessions.Save(ctx.ResponseWriter(), sess); err != nil {
		h.log.ErrorContext(ctx, "failed to store session",
			logger.Handler("auth_callback"),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		login := h.redirects.Login(h.redirects.CurrentURL(ctx.Request()))
		return handler.RedirectURL(redirect.WithError(login, MsgUnexpected))
	}
	h.log.InfoContext(ctx, "user signed in",
		logger.Handler("auth_callback"),
		logger.UserID(user.ID),
		logger.Path(target.Path),
	)
	return handler.RedirectURL(target)
}
