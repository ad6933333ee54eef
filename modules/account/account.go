// Package account serves the credential flows that sit next to the OAuth
// callback: password sign-in and signup, sign-out, password reset, the OAuth
// start endpoint and the account-linking confirmation.
//
// Every browser endpoint answers with a 303 redirect carrying a message or
// error query parameter. Rendering the pages is left to the frontend.
package account

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/launchkit/handler"
	"github.com/dmitrymomot/launchkit/pkg/binder"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/linking"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
)

const (
	LoginPath          = "/login"
	SignupPath         = "/signup"
	LogoutPath         = "/logout"
	ResetPasswordPath  = "/reset-password"
	UpdatePasswordPath = "/update-password"
	ProfileSetupPath   = "/profile/setup"
	OAuthStartPath     = "/auth/oauth/{provider}"
	LinkAccountPath    = "/auth/link-account"

	MinPasswordLength = 8
)

// Sessions is the cookie session store.
type Sessions interface {
	Load(r *http.Request) (*identity.Session, error)
	Save(w http.ResponseWriter, sess *identity.Session) error
	Clear(w http.ResponseWriter)
	SaveVerifier(w http.ResponseWriter, verifier string) error
}

// LinkTokens verifies and consumes account-linking tokens.
type LinkTokens interface {
	Verify(tok, email, provider string) (linking.Claims, error)
	Consume(ctx context.Context, tok, email, provider string) (linking.Claims, error)
}

// Provisioner schedules best-effort provisioning of new accounts.
type Provisioner interface {
	ProvisionAccount(ctx context.Context, user *identity.User)
}

type Service struct {
	auth      identity.Authenticator
	directory identity.Directory
	sessions  Sessions
	tokens    LinkTokens
	redirects *redirect.Builder
	provision Provisioner
	log       *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithProvisioner(p Provisioner) Option {
	return func(s *Service) {
		s.provision = p
	}
}

func New(
	auth identity.Authenticator,
	directory identity.Directory,
	sessions Sessions,
	tokens LinkTokens,
	redirects *redirect.Builder,
	opts ...Option,
) *Service {
	s := &Service{
		auth:      auth,
		directory: directory,
		sessions:  sessions,
		tokens:    tokens,
		redirects: redirects,
		log:       logger.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the account routes on r.
func (s *Service) Register(r chi.Router) {
	form := handler.WithBinders(binder.Form())
	fail := handler.WithErrorHandler(s.fail)

	r.Post(LoginPath, handler.Wrap(s.login, form, fail))
	r.Post(SignupPath, handler.Wrap(s.signup, form, fail))
	r.Post(LogoutPath, handler.Wrap(s.logout, fail))
	r.Post(ResetPasswordPath, handler.Wrap(s.resetPassword, form, fail))
	r.Post(UpdatePasswordPath, handler.Wrap(s.updatePassword, form, fail))
	r.Get(OAuthStartPath, handler.Wrap(s.oauthStart, handler.WithBinders(binder.Query()), fail))
	r.Get(LinkAccountPath, handler.Wrap(s.linkAccountInfo, handler.WithBinders(binder.Query())))
	r.Post(LinkAccountPath, handler.Wrap(s.linkAccount, form, fail))
}

// fail turns binding and rendering errors into a redirect back to the login
// page.
func (s *Service) fail(ctx handler.Context, err error) {
	r := ctx.Request()
	s.log.WarnContext(r.Context(), "account request failed",
		logger.Component("account"),
		logger.Path(r.URL.Path),
		logger.Error(err),
	)
	target := s.errorURL(r, LoginPath, MsgInvalidForm)
	http.Redirect(ctx.ResponseWriter(), r, target.String(), http.StatusSeeOther)
}

func (s *Service) current(r *http.Request) *url.URL {
	return s.redirects.CurrentURL(r)
}

func (s *Service) errorURL(r *http.Request, path, msg string) *url.URL {
	return redirect.WithError(s.redirects.Path(s.current(r), path), msg)
}

func (s *Service) messageURL(r *http.Request, path, msg string) *url.URL {
	return redirect.WithMessage(s.redirects.Path(s.current(r), path), msg)
}
