package account

import (
	"errors"

	"github.com/dmitrymomot/launchkit/pkg/authstatus"
	"github.com/dmitrymomot/launchkit/pkg/identity"
)

const (
	MsgInvalidForm          = "Invalid request. Please try again."
	MsgCredentialsRequired  = "Email and password are required."
	MsgInvalidCredentials   = "Invalid email or password."
	MsgSignedIn             = "Successfully signed in!"
	MsgPasswordTooShort     = "Password must be at least 8 characters long."
	MsgPasswordsMismatch    = "Passwords do not match."
	MsgCheckEmail           = "Check your email to confirm your account."
	MsgWelcome              = "Welcome! Let's finish setting up your profile."
	MsgSignedOut            = "You have been signed out."
	MsgEmailRequired        = "Email is required."
	MsgResetSent            = "If an account exists for that email, a password reset link is on its way."
	MsgSessionRequired      = "Your session has expired. Please sign in again."
	MsgPasswordUpdated      = "Password updated successfully."
	MsgUnsupportedProvider  = "This sign-in provider is not supported."
	MsgOAuthUnavailable     = "Unable to start sign-in. Please try again."
	MsgLinkInvalid          = "This account linking link is invalid or has expired. Please sign in again."
	MsgLinkUsed             = "This account linking link has already been used."
	MsgLinkWrongPassword    = "Incorrect password. Please try again."
	MsgLinkFailed           = "We couldn't link your accounts. Please try again."
	MsgSignupFailed         = "Unable to create your account. Please try again."
	MsgUpdatePasswordFailed = "Unable to update your password. Please try again."
	MsgTooManyAttempts      = "Too many attempts. Please wait a moment and try again."
)

// errorMessage maps an identity provider error to a user-facing message.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return MsgInvalidCredentials
	case errors.Is(err, identity.ErrTimeout), errors.Is(err, identity.ErrNetwork):
		return authstatus.Describe(err) + ". Please try again."
	default:
		return ""
	}
}

// messageOr returns the mapped message for err or fallback.
func messageOr(err error, fallback string) string {
	if msg := errorMessage(err); msg != "" {
		return msg
	}
	return fallback
}
