package identity

import "errors"

var (
	ErrMissingConfig      = errors.New("identity provider url and anon key are required")
	ErrMissingAdminKey    = errors.New("identity provider service role key is required for admin calls")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrInvalidGrant       = errors.New("invalid_grant: code is invalid or expired")
	ErrNetwork            = errors.New("network error contacting identity provider")
	ErrTimeout            = errors.New("identity provider timeout")
	ErrUnauthorized       = errors.New("identity provider rejected the token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnsupportedOAuth   = errors.New("unsupported oauth provider")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrNoSession          = errors.New("no session")
	ErrNoVerifier         = errors.New("no pkce verifier")
	ErrProvider           = errors.New("identity provider error")
)
