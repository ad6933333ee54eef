package account

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrymomot/launchkit/handler"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/linking"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
)

var (
	ErrLinkTokenInvalid = handler.NewHTTPError(http.StatusBadRequest, "invalid_link_token")
	ErrLinkTokenExpired = handler.NewHTTPError(http.StatusGone, "link_token_expired")
)

type LinkInfoRequest struct {
	Token    string `query:"token"`
	Provider string `query:"provider"`
	Email    string `query:"email"`
}

// LinkInfo describes a pending account link to the confirmation page.
type LinkInfo struct {
	Email        string    `json:"email"`
	Provider     string    `json:"provider"`
	ProviderName string    `json:"provider_name"`
	ExpiresAt    time.Time `json:"expires_at"`
	Message      string    `json:"message"`
}

func (s *Service) linkAccountInfo(ctx handler.Context, req LinkInfoRequest) handler.Response {
	claims, err := s.tokens.Verify(req.Token, req.Email, req.Provider)
	if err != nil {
		if errors.Is(err, linking.ErrTokenExpired) {
			return handler.JSONError(ErrLinkTokenExpired)
		}
		return handler.JSONError(ErrLinkTokenInvalid)
	}

	name := linking.ProviderName(claims.Provider)
	return handler.JSON(LinkInfo{
		Email:        claims.Email,
		Provider:     claims.Provider,
		ProviderName: name,
		ExpiresAt:    claims.ExpiresAt,
		Message:      fmt.Sprintf("An account with this email already exists. Enter its password to link your %s account.", name),
	})
}

type LinkAccountRequest struct {
	Token    string `form:"token"`
	Provider string `form:"provider"`
	Email    string `form:"email"`
	Password string `form:"password"`
}

// linkAccount merges the OAuth account created by the callback into the
// existing password account after the user proves they own it.
func (s *Service) linkAccount(ctx handler.Context, req LinkAccountRequest) handler.Response {
	r := ctx.Request()

	claims, err := s.tokens.Verify(req.Token, req.Email, req.Provider)
	if err != nil {
		s.log.WarnContext(ctx, "linking token rejected",
			logger.Component("account"),
			logger.Event("link_account"),
			logger.Error(err),
		)
		return handler.RedirectURL(s.errorURL(r, LoginPath, MsgLinkInvalid))
	}

	retry := func(msg string) handler.Response {
		u := s.redirects.Path(s.current(r), LinkAccountPath)
		q := url.Values{}
		q.Set("token", req.Token)
		q.Set("provider", claims.Provider)
		q.Set("email", claims.Email)
		q.Set(redirect.ErrorParam, msg)
		u.RawQuery = q.Encode()
		return handler.RedirectURL(u)
	}

	if req.Password == "" {
		return retry(MsgLinkWrongPassword)
	}
	sess, user, err := s.auth.SignInWithPassword(ctx, claims.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return retry(MsgLinkWrongPassword)
		}
		s.log.WarnContext(ctx, "linking sign-in failed",
			logger.Component("account"),
			logger.Event("link_account"),
			logger.Error(err),
		)
		return retry(messageOr(err, MsgLinkFailed))
	}
	if user.ID != claims.ExistingUserID {
		s.log.WarnContext(ctx, "linking token does not match signed-in account",
			logger.Component("account"),
			logger.UserID(user.ID),
			slog.String("expected_user_id", claims.ExistingUserID),
		)
		return handler.RedirectURL(s.errorURL(r, LoginPath, MsgLinkInvalid))
	}

	if _, err := s.tokens.Consume(ctx, req.Token, claims.Email, claims.Provider); err != nil {
		msg := MsgLinkFailed
		if errors.Is(err, linking.ErrTokenAlreadyUsed) {
			msg = MsgLinkUsed
		}
		return handler.RedirectURL(s.errorURL(r, LoginPath, msg))
	}

	if err := s.directory.LinkProvider(ctx, claims.ExistingUserID, claims.Provider); err != nil {
		s.log.ErrorContext(ctx, "failed to link provider",
			logger.Component("account"),
			logger.UserID(claims.ExistingUserID),
			logger.Provider(claims.Provider),
			logger.Error(err),
		)
		return handler.RedirectURL(s.errorURL(r, LoginPath, MsgLinkFailed))
	}

	if claims.NewUserID != "" && claims.NewUserID != claims.ExistingUserID {
		if err := s.directory.DeleteUser(ctx, claims.NewUserID); err != nil {
			s.log.WarnContext(ctx, "failed to delete duplicate oauth account",
				logger.Component("account"),
				logger.UserID(claims.NewUserID),
				logger.Error(err),
			)
		}
	}

	s.log.InfoContext(ctx, "accounts linked",
		logger.Component("account"),
		logger.Event("link_account"),
		logger.UserID(claims.ExistingUserID),
		logger.Provider(claims.Provider),
	)

	if err := s.sessions.Save(ctx.ResponseWriter(), sess); err != nil {
		return handler.RedirectURL(s.messageURL(r, LoginPath, linkedMessage(claims.Provider)))
	}
	return handler.RedirectURL(redirect.WithMessage(s.redirects.Landing(s.current(r)), linkedMessage(claims.Provider)))
}

func linkedMessage(provider string) string {
	return fmt.Sprintf("Your %s account is now linked. You can sign in with either method.", linking.ProviderName(provider))
}
