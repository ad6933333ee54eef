// Package identity is the boundary to the hosted identity provider. It
// defines the provider-neutral User and Session types, the Provider contract
// the gateway consumes, a GoTrue (Supabase Auth) implementation and a cookie
// backed SessionStore.
package identity

import (
	"context"
	"slices"
	"strings"
	"time"
)

// ProviderEmail is the identity provider name of email/password accounts.
const ProviderEmail = "email"

// Identity is one sign-in method attached to a user.
type Identity struct {
	ID        string
	Provider  string
	CreatedAt time.Time
}

// User is the identity provider's view of an account.
type User struct {
	ID             string
	Email          string
	EmailConfirmed bool
	Providers      []string
	Identities     []Identity
	Metadata       map[string]any
	CreatedAt      time.Time
	LastSignInAt   *time.Time
}

// HasProvider reports whether provider is attached to u.
func (u *User) HasProvider(provider string) bool {
	return u != nil && slices.ContainsFunc(u.Providers, func(p string) bool {
		return strings.EqualFold(p, provider)
	})
}

// HasPassword reports whether u can sign in with email and password.
func (u *User) HasPassword() bool {
	return u.HasProvider(ProviderEmail)
}

// OAuthProviders returns the non-email providers attached to u.
func (u *User) OAuthProviders() []string {
	if u == nil {
		return nil
	}
	out := make([]string, 0, len(u.Providers))
	for _, p := range u.Providers {
		if !strings.EqualFold(p, ProviderEmail) {
			out = append(out, p)
		}
	}
	return out
}

// DisplayName returns the best available human name from metadata.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	for _, key := range []string{"full_name", "name"} {
		if v, ok := u.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// AvatarURL returns the avatar from metadata, if any.
func (u *User) AvatarURL() string {
	if u == nil {
		return ""
	}
	for _, key := range []string{"avatar_url", "picture"} {
		if v, ok := u.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Session is the token pair issued by the identity provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Authenticator covers the end-user flows of the identity provider.
type Authenticator interface {
	GetUser(ctx context.Context, accessToken string) (*User, error)
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (*Session, *User, error)
	// VerifyEmailLink redeems the token hash of a signup confirmation,
	// recovery or magic link email. kind is the link type the provider put
	// in the email.
	VerifyEmailLink(ctx context.Context, kind, tokenHash, redirectTo string) (*Session, *User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, *User, error)
	// SignUp returns a nil Session when the provider requires email confirmation.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Session, *User, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
	RefreshSession(ctx context.Context, refreshToken string) (*Session, *User, error)
	// AuthorizeURL starts a PKCE OAuth flow and returns the URL to send the
	// browser to together with the verifier to keep until the callback.
	AuthorizeURL(ctx context.Context, provider string) (authURL, verifier string, err error)
}

// Directory covers the admin user operations.
type Directory interface {
	ListUsersByEmail(ctx context.Context, email string) ([]User, error)
	DeleteUser(ctx context.Context, userID string) error
	// LinkProvider records provider as linked on the user's app metadata.
	LinkProvider(ctx context.Context, userID, provider string) error
}

// Provider is the full identity provider contract.
type Provider interface {
	Authenticator
	Directory
	Ping(ctx context.Context) error
}
