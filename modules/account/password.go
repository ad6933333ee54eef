package account

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/dmitrymomot/launchkit/handler"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
)

type LoginRequest struct {
	Email    string `form:"email"`
	Password string `form:"password"`
	ReturnTo string `form:"returnTo"`
}

func (s *Service) login(ctx handler.Context, req LoginRequest) handler.Response {
	r := ctx.Request()
	email := normalizeEmail(req.Email)

	back := func(msg string) handler.Response {
		u := s.errorURL(r, LoginPath, msg)
		if req.ReturnTo != "" {
			u = redirect.WithParam(u, redirect.ReturnToParam, req.ReturnTo)
		}
		return handler.RedirectURL(u)
	}

	if email == "" || req.Password == "" {
		return back(MsgCredentialsRequired)
	}

	sess, user, err := s.auth.SignInWithPassword(ctx, email, req.Password)
	if err != nil {
		s.log.WarnContext(ctx, "password sign-in failed",
			logger.Component("account"),
			logger.Event("login"),
			logger.Error(err),
		)
		return back(messageOr(err, MsgInvalidCredentials))
	}
	if err := s.sessions.Save(ctx.ResponseWriter(), sess); err != nil {
		s.log.ErrorContext(ctx, "failed to store session",
			logger.Component("account"),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return back(MsgInvalidForm)
	}

	s.log.InfoContext(ctx, "user signed in",
		logger.Component("account"),
		logger.Event("login"),
		logger.UserID(user.ID),
	)
	target := s.redirects.PostAuthURL(s.current(r), req.ReturnTo)
	return handler.RedirectURL(redirect.WithMessage(target, MsgSignedIn))
}

type SignupRequest struct {
	Email           string `form:"email"`
	Password        string `form:"password"`
	PasswordConfirm string `form:"password_confirm"`
	FullName        string `form:"full_name"`
}

func (s *Service) signup(ctx handler.Context, req SignupRequest) handler.Response {
	r := ctx.Request()
	email := normalizeEmail(req.Email)

	switch {
	case email == "" || req.Password == "":
		return handler.RedirectURL(s.errorURL(r, SignupPath, MsgCredentialsRequired))
	case len(req.Password) < MinPasswordLength:
		return handler.RedirectURL(s.errorURL(r, SignupPath, MsgPasswordTooShort))
	case req.PasswordConfirm != req.Password:
		return handler.RedirectURL(s.errorURL(r, SignupPath, MsgPasswordsMismatch))
	}

	var metadata map[string]any
	if name := strings.TrimSpace(req.FullName); name != "" {
		metadata = map[string]any{"full_name": name}
	}

	sess, user, err := s.auth.SignUp(ctx, email, req.Password, metadata)
	if err != nil {
		s.log.WarnContext(ctx, "signup failed",
			logger.Component("account"),
			logger.Event("signup"),
			logger.Error(err),
		)
		return handler.RedirectURL(s.errorURL(r, SignupPath, messageOr(err, MsgSignupFailed)))
	}

	// Without a session the provider sent a confirmation email; provisioning
	// happens when the callback confirms it.
	if sess == nil {
		return handler.RedirectURL(s.messageURL(r, LoginPath, MsgCheckEmail))
	}
	if err := s.sessions.Save(ctx.ResponseWriter(), sess); err != nil {
		s.log.ErrorContext(ctx, "failed to store session",
			logger.Component("account"),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return handler.RedirectURL(s.messageURL(r, LoginPath, MsgCheckEmail))
	}
	if s.provision != nil {
		s.provision.ProvisionAccount(ctx, user)
	}
	return handler.RedirectURL(s.messageURL(r, ProfileSetupPath, MsgWelcome))
}

func (s *Service) logout(ctx handler.Context, _ struct{}) handler.Response {
	r := ctx.Request()
	if sess, err := s.sessions.Load(r); err == nil {
		if err := s.auth.SignOut(ctx, sess.AccessToken); err != nil {
			s.log.WarnContext(ctx, "provider sign-out failed",
				logger.Component("account"),
				logger.Event("logout"),
				logger.Error(err),
			)
		}
	}
	s.sessions.Clear(ctx.ResponseWriter())
	return handler.RedirectURL(s.messageURL(r, LoginPath, MsgSignedOut))
}

type ResetPasswordRequest struct {
	Email string `form:"email"`
}

// resetPassword answers the same way whether or not the email is known.
func (s *Service) resetPassword(ctx handler.Context, req ResetPasswordRequest) handler.Response {
	r := ctx.Request()
	email := normalizeEmail(req.Email)
	if email == "" {
		return handler.RedirectURL(s.errorURL(r, ResetPasswordPath, MsgEmailRequired))
	}

	if err := s.auth.ResetPasswordForEmail(ctx, email); err != nil {
		s.log.WarnContext(ctx, "password reset request failed",
			logger.Component("account"),
			logger.Event("reset_password"),
			logger.Error(err),
		)
		if errors.Is(err, identity.ErrTimeout) || errors.Is(err, identity.ErrNetwork) {
			return handler.RedirectURL(s.errorURL(r, ResetPasswordPath, errorMessage(err)))
		}
	}
	return handler.RedirectURL(s.messageURL(r, LoginPath, MsgResetSent))
}

type UpdatePasswordRequest struct {
	Password        string `form:"password"`
	PasswordConfirm string `form:"password_confirm"`
}

func (s *Service) updatePassword(ctx handler.Context, req UpdatePasswordRequest) handler.Response {
	r := ctx.Request()

	sess, err := s.sessions.Load(r)
	if err != nil {
		return handler.RedirectURL(s.errorURL(r, LoginPath, MsgSessionRequired))
	}

	switch {
	case len(req.Password) < MinPasswordLength:
		return handler.RedirectURL(s.errorURL(r, UpdatePasswordPath, MsgPasswordTooShort))
	case req.PasswordConfirm != req.Password:
		return handler.RedirectURL(s.errorURL(r, UpdatePasswordPath, MsgPasswordsMismatch))
	}

	if err := s.auth.UpdatePassword(ctx, sess.AccessToken, req.Password); err != nil {
		s.log.WarnContext(ctx, "password update failed",
			logger.Component("account"),
			logger.Event("update_password"),
			logger.Error(err),
		)
		if errors.Is(err, identity.ErrUnauthorized) {
			s.sessions.Clear(ctx.ResponseWriter())
			return handler.RedirectURL(s.errorURL(r, LoginPath, MsgSessionRequired))
		}
		return handler.RedirectURL(s.errorURL(r, UpdatePasswordPath, messageOr(err, MsgUpdatePasswordFailed)))
	}

	return handler.RedirectURL(redirect.WithMessage(s.redirects.Landing(s.current(r)), MsgPasswordUpdated))
}

// normalizeEmail trims and lowercases a submitted address, returning ""
// for anything that does not parse as a bare address.
func normalizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return ""
	}
	return strings.ToLower(addr.Address)
}
