// Package identitymock provides a testify mock of identity.Provider.
package identitymock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/launchkit/pkg/identity"
)

// Provider is a mock implementation of identity.Provider.
type Provider struct {
	mock.Mock
}

var _ identity.Provider = (*Provider)(nil)

func (m *Provider) GetUser(ctx context.Context, accessToken string) (*identity.User, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *Provider) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*identity.Session, *identity.User, error) {
	args := m.Called(ctx, code, verifier)
	return session(args, 0), user(args, 1), args.Error(2)
}

func (m *Provider) VerifyEmailLink(ctx context.Context, kind, tokenHash, redirectTo string) (*identity.Session, *identity.User, error) {
	args := m.Called(ctx, kind, tokenHash, redirectTo)
	return session(args, 0), user(args, 1), args.Error(2)
}

func (m *Provider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, *identity.User, error) {
	args := m.Called(ctx, email, password)
	return session(args, 0), user(args, 1), args.Error(2)
}

func (m *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.Session, *identity.User, error) {
	args := m.Called(ctx, email, password, metadata)
	return session(args, 0), user(args, 1), args.Error(2)
}

func (m *Provider) SignOut(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

func (m *Provider) ResetPasswordForEmail(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *Provider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return m.Called(ctx, accessToken, password).Error(0)
}

func (m *Provider) RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, *identity.User, error) {
	args := m.Called(ctx, refreshToken)
	return session(args, 0), user(args, 1), args.Error(2)
}

func (m *Provider) AuthorizeURL(ctx context.Context, provider string) (string, string, error) {
	args := m.Called(ctx, provider)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *Provider) ListUsersByEmail(ctx context.Context, email string) ([]identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.User), args.Error(1)
}

func (m *Provider) DeleteUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *Provider) LinkProvider(ctx context.Context, userID, provider string) error {
	return m.Called(ctx, userID, provider).Error(0)
}

func (m *Provider) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func session(args mock.Arguments, i int) *identity.Session {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*identity.Session)
}

func user(args mock.Arguments, i int) *identity.User {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*identity.User)
}
