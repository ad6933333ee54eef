package callback

import (
	"errors"
	"strings"

	"github.com/dmitrymomot/launchkit/pkg/identity"
)

// OAuth error codes returned by the identity provider on the callback URL.
const (
	ErrCodeAccessDenied           = "access_denied"
	ErrCodeInvalidGrant           = "invalid_grant"
	ErrCodeInvalidRequest         = "invalid_request"
	ErrCodeServerError            = "server_error"
	ErrCodeTemporarilyUnavailable = "temporarily_unavailable"
	ErrCodeInvalidScope           = "invalid_scope"
)

var oauthErrorMessages = map[string]string{
	ErrCodeAccessDenied:           "You cancelled the sign-in process. Please try again.",
	ErrCodeInvalidGrant:           "The authorization code is invalid or expired. Please sign in again.",
	ErrCodeInvalidRequest:         "The authentication request was invalid. Please try again.",
	ErrCodeServerError:            "The authentication server encountered an error. Please try again later.",
	ErrCodeTemporarilyUnavailable: "The authentication service is temporarily unavailable. Please try again later.",
	ErrCodeInvalidScope:           "The requested permissions are not available. Please contact support.",
}

const (
	MsgGenericOAuthError  = "An unexpected authentication error occurred. Please try again."
	MsgInvalidRequest     = "Invalid authentication request."
	MsgUnexpected         = "An unexpected error occurred. Please try again."
	MsgExchangeExpired    = "Your sign-in link is invalid or expired. Please try again."
	MsgExchangeNetwork    = "A network error occurred during sign-in. Please try again."
	MsgExchangeFailed     = "Authentication failed. Please try again."
	MsgWelcome            = "Welcome! Let's finish setting up your profile."
	MsgEmailConfirmed     = "Email confirmed successfully! Welcome aboard."
	MsgSignedIn           = "Successfully signed in!"
	MsgLinkingUnavailable = "We couldn't start account linking. Please try again."
)

// OAuthErrorMessage maps an OAuth error code to a user-facing message.
// Unknown codes use description verbatim when present.
func OAuthErrorMessage(code, description string) string {
	if msg, ok := oauthErrorMessages[strings.ToLower(strings.TrimSpace(code))]; ok {
		return msg
	}
	if strings.TrimSpace(description) != "" {
		return description
	}
	return MsgGenericOAuthError
}

// ExchangeErrorMessage maps a code exchange failure to a user-facing message.
// Typed identity errors are matched first, then the provider's free text. A
// nil error means the exchange returned no session and gets the generic text.
func ExchangeErrorMessage(err error) string {
	if err == nil {
		return MsgExchangeFailed
	}
	text := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, identity.ErrInvalidGrant), errors.Is(err, identity.ErrNoVerifier),
		strings.Contains(text, "invalid_grant"):
		return MsgExchangeExpired
	case errors.Is(err, identity.ErrNetwork), errors.Is(err, identity.ErrTimeout),
		strings.Contains(text, "network"):
		return MsgExchangeNetwork
	default:
		return MsgExchangeFailed
	}
}

// codeFragment returns the loggable prefix of an authorization code.
func codeFragment(code string) string {
	if len(code) <= 8 {
		return code[:len(code)/2] + "..."
	}
	return code[:8] + "..."
}
