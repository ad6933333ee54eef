// Package linking detects email collisions between an incoming OAuth
// identity and existing accounts, and carries the linking intent across a
// redirect in a signed, expiring, single-use token.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/logger"
)

// ConflictType classifies an email collision that cannot be linked.
type ConflictType string

const (
	ConflictNone              ConflictType = ""
	ConflictOAuthExists       ConflictType = "oauth_exists"
	ConflictMultipleProviders ConflictType = "multiple_providers"
)

// Decision is the outcome of a linking check.
type Decision struct {
	NeedsLinking   bool
	ExistingUserID string
	ConflictType   ConflictType
	Message        string
}

// Conflict reports whether the decision blocks the sign-in.
func (d Decision) Conflict() bool {
	return d.ConflictType != ConflictNone
}

// Directory looks up accounts by email.
type Directory interface {
	ListUsersByEmail(ctx context.Context, email string) ([]identity.User, error)
}

type Resolver struct {
	dir Directory
	log *slog.Logger
}

type ResolverOption func(*Resolver)

func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

func NewResolver(dir Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{dir: dir, log: logger.Noop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check inspects the accounts registered under email, ignoring newUserID
// (the account the OAuth sign-in just created). Precedence: an account that
// already has provider, then a password account, then any other OAuth-only
// account.
func (r *Resolver) Check(ctx context.Context, email, provider, newUserID string) (Decision, error) {
	email = strings.TrimSpace(email)
	provider = strings.ToLower(strings.TrimSpace(provider))
	if email == "" {
		return Decision{}, nil
	}

	users, err := r.dir.ListUsersByEmail(ctx, email)
	if err != nil {
		return Decision{}, errors.Join(ErrLookupFailed, err)
	}

	var withProvider, withPassword, oauthOnly *identity.User
	for i := range users {
		u := &users[i]
		if u.ID == newUserID || !strings.EqualFold(u.Email, email) {
			continue
		}
		switch {
		case u.HasProvider(provider):
			if withProvider == nil {
				withProvider = u
			}
		case u.HasPassword():
			if withPassword == nil {
				withPassword = u
			}
		default:
			if oauthOnly == nil {
				oauthOnly = u
			}
		}
	}

	name := ProviderName(provider)
	var dec Decision
	switch {
	case withProvider != nil:
		dec = Decision{
			ExistingUserID: withProvider.ID,
			ConflictType:   ConflictOAuthExists,
			Message:        fmt.Sprintf("An account using %s sign-in already exists for this email. Please sign in with %s.", name, name),
		}
	case withPassword != nil:
		dec = Decision{
			NeedsLinking:   true,
			ExistingUserID: withPassword.ID,
			Message:        fmt.Sprintf("An account with this email already exists. Confirm your password to link your %s account.", name),
		}
	case oauthOnly != nil:
		dec = Decision{
			ExistingUserID: oauthOnly.ID,
			ConflictType:   ConflictMultipleProviders,
			Message:        "This email is already associated with a different sign-in provider. Please contact support to merge your accounts.",
		}
	default:
		return Decision{}, nil
	}

	r.log.InfoContext(ctx, "account linking check",
		logger.Component("linking"),
		logger.Provider(provider),
		logger.UserID(dec.ExistingUserID),
		slog.Bool("needs_linking", dec.NeedsLinking),
		slog.String("conflict_type", string(dec.ConflictType)),
	)
	return dec, nil
}

// ProviderName returns the display name of an OAuth provider.
func ProviderName(provider string) string {
	switch strings.ToLower(provider) {
	case "github":
		return "GitHub"
	case "gitlab":
		return "GitLab"
	case "linkedin", "linkedin_oidc":
		return "LinkedIn"
	case "":
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(provider, "_", " "))
}
