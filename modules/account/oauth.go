package account

import (
	"errors"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/launchkit/handler"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/logger"
)

// oauthStart begins a PKCE flow: the verifier goes into a short-lived cookie
// and the browser is sent to the provider.
func (s *Service) oauthStart(ctx handler.Context, _ struct{}) handler.Response {
	r := ctx.Request()
	provider := chi.URLParam(r, "provider")

	authURL, verifier, err := s.auth.AuthorizeURL(ctx, provider)
	if err != nil {
		s.log.WarnContext(ctx, "oauth start failed",
			logger.Component("account"),
			logger.Provider(provider),
			logger.Error(err),
		)
		msg := MsgOAuthUnavailable
		if errors.Is(err, identity.ErrUnsupportedOAuth) {
			msg = MsgUnsupportedProvider
		}
		return handler.RedirectURL(s.errorURL(r, LoginPath, msg))
	}

	if err := s.sessions.SaveVerifier(ctx.ResponseWriter(), verifier); err != nil {
		s.log.ErrorContext(ctx, "failed to store pkce verifier",
			logger.Component("account"),
			logger.Provider(provider),
			logger.Error(err),
		)
		return handler.RedirectURL(s.errorURL(r, LoginPath, MsgOAuthUnavailable))
	}
	return handler.Redirect(authURL)
}
