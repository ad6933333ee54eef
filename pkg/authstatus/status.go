// Package authstatus determines whether a request carries a valid session by
// delegating to the identity provider. Resolution never fails: provider
// errors, timeouts and panics all surface as an unauthenticated Status with
// Error populated.
package authstatus

import (
	"context"
	"time"

	"github.com/dmitrymomot/launchkit/pkg/identity"
)

// Status is the per-request authentication state.
type Status struct {
	IsAuthenticated bool
	User            *identity.User
	Session         *identity.Session
	Error           string
	// Refreshed is set when an expired access token was renewed during resolution.
	Refreshed bool
}

// Derive builds a Status from a user and session. IsAuthenticated requires
// both to be present and the session to be unexpired at now.
func Derive(user *identity.User, sess *identity.Session, now time.Time) Status {
	return Status{
		IsAuthenticated: user != nil && sess != nil && sess.AccessToken != "" && !sess.Expired(now),
		User:            user,
		Session:         sess,
	}
}

// UserID returns the authenticated user's id, or "".
func (s Status) UserID() string {
	if !s.IsAuthenticated || s.User == nil {
		return ""
	}
	return s.User.ID
}

type contextKey struct{}

func WithContext(ctx context.Context, s Status) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the Status stored by the auth gate, if any.
func FromContext(ctx context.Context) (Status, bool) {
	s, ok := ctx.Value(contextKey{}).(Status)
	return s, ok
}

// UserFromContext returns the authenticated user stored on ctx.
func UserFromContext(ctx context.Context) (*identity.User, bool) {
	s, ok := FromContext(ctx)
	if !ok || !s.IsAuthenticated {
		return nil, false
	}
	return s.User, true
}
