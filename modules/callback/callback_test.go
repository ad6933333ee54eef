package callback_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/modules/callback"
	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/pkg/billing/billingmock"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/identity/identitymock"
	"github.com/dmitrymomot/launchkit/pkg/linking"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/provision"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSessions struct {
	verifier string
	saved    *identity.Session
	saveErr  error
}

func (f *fakeSessions) TakeVerifier(http.ResponseWriter, *http.Request) (string, error) {
	if f.verifier == "" {
		return "", identity.ErrNoVerifier
	}
	v := f.verifier
	f.verifier = ""
	return v, nil
}

func (f *fakeSessions) Save(_ http.ResponseWriter, s *identity.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = s
	return nil
}

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) ProvisionCustomer(ctx context.Context, user *identity.User) {
	m.Called(ctx, user)
}

func (m *mockProvisioner) ProvisionAccount(ctx context.Context, user *identity.User) {
	m.Called(ctx, user)
}

type fixture struct {
	idp       *identitymock.Provider
	sessions  *fakeSessions
	provision *mockProvisioner
	tokens    *linking.Tokens
	logs      *bytes.Buffer
	handler   *callback.Handler
}

func newFixture(t *testing.T, opts ...callback.Option) *fixture {
	t.Helper()

	rb, err := redirect.New(redirect.WithBaseURL("http://example.com"))
	require.NoError(t, err)
	tokens, err := linking.NewTokens([]byte("0123456789abcdef0123456789abcdef"), nil, linking.WithTokenClock(func() time.Time { return now }))
	require.NoError(t, err)

	f := &fixture{
		idp:       &identitymock.Provider{},
		sessions:  &fakeSessions{verifier: "verifier-1"},
		provision: &mockProvisioner{},
		tokens:    tokens,
		logs:      &bytes.Buffer{},
	}
	log := logger.New(logger.WithOutput(f.logs), logger.WithFormat(logger.FormatJSON), logger.WithLevel(slog.LevelDebug))

	opts = append([]callback.Option{
		callback.WithClock(func() time.Time { return now }),
		callback.WithLogger(log),
		callback.WithProvisioner(f.provision),
	}, opts...)
	f.handler = callback.New(f.idp, f.sessions, linking.NewResolver(f.idp), tokens, rb, opts...)
	return f
}

func (f *fixture) get(t *testing.T, rawQuery string) *url.URL {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?"+rawQuery, nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}

func session() *identity.Session {
	return &identity.Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: now.Add(time.Hour)}
}

func oauthUser(age time.Duration) *identity.User {
	return &identity.User{
		ID:        "11111111-1111-1111-1111-111111111111",
		Email:     "ada@example.com",
		Providers: []string{"google"},
		CreatedAt: now.Add(-age),
	}
}

func TestOAuthErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code, description string
		contains          string
	}{
		{"access_denied", "", "cancelled the sign-in process"},
		{"access_denied", "User denied", "cancelled the sign-in process"},
		{"invalid_grant", "", "invalid or expired"},
		{"server_error", "", "server encountered an error"},
		{"temporarily_unavailable", "", "temporarily unavailable"},
		{"invalid_request", "", "request was invalid"},
		{"invalid_scope", "", "permissions"},
		{"weird_error", "Something odd happened", "Something odd happened"},
		{"weird_error", "", callback.MsgGenericOAuthError},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.description, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, callback.OAuthErrorMessage(tt.code, tt.description), tt.contains)
		})
	}

	assert.Equal(t, "Something odd happened", callback.OAuthErrorMessage("weird_error", "Something odd happened"))
	assert.Equal(t, "  Padded description ", callback.OAuthErrorMessage("weird_error", "  Padded description "))
	assert.Equal(t, callback.MsgGenericOAuthError, callback.OAuthErrorMessage("weird_error", "   "))
}

func TestExchangeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, callback.MsgExchangeExpired, callback.ExchangeErrorMessage(identity.ErrInvalidGrant))
	assert.Equal(t, callback.MsgExchangeExpired, callback.ExchangeErrorMessage(errors.New("response status code 400: invalid_grant")))
	assert.Equal(t, callback.MsgExchangeExpired, callback.ExchangeErrorMessage(identity.ErrNoVerifier))
	assert.Equal(t, callback.MsgExchangeNetwork, callback.ExchangeErrorMessage(errors.Join(identity.ErrTimeout, context.DeadlineExceeded)))
	assert.Equal(t, callback.MsgExchangeNetwork, callback.ExchangeErrorMessage(errors.New("network unreachable")))
	assert.Equal(t, callback.MsgExchangeFailed, callback.ExchangeErrorMessage(errors.New("boom")))
	assert.Equal(t, callback.MsgExchangeFailed, callback.ExchangeErrorMessage(nil))
}

func TestCallbackProviderError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	loc := f.get(t, "error=access_denied&error_description=User+denied")

	assert.Equal(t, "/login", loc.Path)
	assert.Contains(t, loc.Query().Get("error"), "cancelled the sign-in process")
	f.idp.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestCallbackMissingCodeAndError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "http://example.com/login?error=Invalid+authentication+request.", rec.Header().Get("Location"))
	assert.Contains(t, f.logs.String(), `"level":"WARN"`)
	assert.Contains(t, f.logs.String(), "auth callback without code or error")
}

func TestCallbackExchangeFailure(t *testing.T) {
	t.Parallel()

	t.Run("expired code", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.idp.On("ExchangeCodeForSession", mock.Anything, "abcdefghijklmnop", "verifier-1").
			Return(nil, nil, identity.ErrInvalidGrant)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "/login", loc.Path)
		assert.Equal(t, callback.MsgExchangeExpired, loc.Query().Get("error"))
		assert.Contains(t, f.logs.String(), "abcdefgh...")
		assert.NotContains(t, f.logs.String(), "abcdefghijklmnop")
		assert.Nil(t, f.sessions.saved)
	})

	t.Run("network", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, nil, identity.ErrNetwork)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, callback.MsgExchangeNetwork, loc.Query().Get("error"))
	})

	t.Run("missing verifier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.sessions.verifier = ""
		f.idp.On("ExchangeCodeForSession", mock.Anything, "abcdefghijklmnop", "").
			Return(nil, nil, identity.ErrNoVerifier)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, callback.MsgExchangeExpired, loc.Query().Get("error"))
	})

	t.Run("no session without error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil, nil)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "/login", loc.Path)
		assert.Equal(t, callback.MsgExchangeFailed, loc.Query().Get("error"))
		assert.Nil(t, f.sessions.saved)
	})
}

func TestCallbackEmailLink(t *testing.T) {
	t.Parallel()

	const callbackURL = "http://example.com/auth/callback"

	t.Run("recovery", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.sessions.verifier = ""
		user := oauthUser(time.Hour)
		user.Providers = []string{"email"}
		f.idp.On("VerifyEmailLink", mock.Anything, "recovery", "hash-1", callbackURL).Return(session(), user, nil)

		loc := f.get(t, "token_hash=hash-1&type=recovery")
		assert.Equal(t, "http://example.com/update-password", loc.String())
		assert.NotNil(t, f.sessions.saved)
		f.idp.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("signup confirmation provisions the account", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.sessions.verifier = ""
		user := oauthUser(time.Minute)
		user.Providers = []string{"email"}
		f.idp.On("VerifyEmailLink", mock.Anything, "signup", "hash-2", callbackURL).Return(session(), user, nil)
		f.provision.On("ProvisionAccount", mock.Anything, user).Return()

		loc := f.get(t, "token_hash=hash-2&type=signup")
		assert.Equal(t, "/profile", loc.Path)
		assert.Equal(t, callback.MsgEmailConfirmed, loc.Query().Get("message"))
		f.provision.AssertExpectations(t)
	})

	t.Run("expired link", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.idp.On("VerifyEmailLink", mock.Anything, "recovery", "hash-3", callbackURL).
			Return(nil, nil, identity.ErrInvalidGrant)

		loc := f.get(t, "token_hash=hash-3&type=recovery")
		assert.Equal(t, "/login", loc.Path)
		assert.Equal(t, callback.MsgExchangeExpired, loc.Query().Get("error"))
	})

	t.Run("token hash without type", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		loc := f.get(t, "token_hash=hash-4")
		assert.Equal(t, callback.MsgInvalidRequest, loc.Query().Get("error"))
		f.idp.AssertNotCalled(t, "VerifyEmailLink", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCallbackNewVersusReturningUser(t *testing.T) {
	t.Parallel()

	t.Run("created 30 seconds ago", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		user := oauthUser(30 * time.Second)
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)
		f.idp.On("ListUsersByEmail", mock.Anything, user.Email).Return([]identity.User{*user}, nil)
		f.provision.On("ProvisionCustomer", mock.Anything, user).Return()

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "/profile/setup", loc.Path)
		assert.Contains(t, loc.Query().Get("message"), "Welcome")
		assert.NotNil(t, f.sessions.saved)
		f.provision.AssertExpectations(t)
	})

	t.Run("created 2 minutes ago", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		user := oauthUser(2 * time.Minute)
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "http://example.com/profile?message=Successfully+signed+in%21", loc.String())
		f.idp.AssertNotCalled(t, "ListUsersByEmail", mock.Anything, mock.Anything)
		f.provision.AssertNotCalled(t, "ProvisionCustomer", mock.Anything, mock.Anything)
	})

	t.Run("new email account is not an oauth signup", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		user := oauthUser(10 * time.Second)
		user.Providers = []string{"email"}
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)

		loc := f.get(t, "code=abcdefghijklmnop&next=%2Fdashboard")
		assert.Equal(t, "/dashboard", loc.Path)
		assert.Equal(t, callback.MsgSignedIn, loc.Query().Get("message"))
	})
}

func TestCallbackRecoveryOverrides(t *testing.T) {
	t.Parallel()

	for _, age := range []time.Duration{10 * time.Second, time.Hour} {
		f := newFixture(t)
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), oauthUser(age), nil)

		loc := f.get(t, "code=abcdefghijklmnop&type=recovery&next=%2Fdashboard")
		assert.Equal(t, "http://example.com/update-password", loc.String())
		assert.NotNil(t, f.sessions.saved)
		f.idp.AssertNotCalled(t, "ListUsersByEmail", mock.Anything, mock.Anything)
	}
}

func TestCallbackEmailConfirmation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	user := oauthUser(time.Hour)
	user.Providers = []string{"email"}
	f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)
	f.provision.On("ProvisionAccount", mock.Anything, user).Return()

	loc := f.get(t, "code=abcdefghijklmnop&type=signup&next=%2Fdashboard%3Ftab%3Danalytics")
	assert.Equal(t, "/dashboard", loc.Path)
	assert.Equal(t, "analytics", loc.Query().Get("tab"))
	assert.Equal(t, callback.MsgEmailConfirmed, loc.Query().Get("message"))
	f.provision.AssertExpectations(t)
}

func TestCallbackRejectsOpenRedirect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), oauthUser(time.Hour), nil)

	loc := f.get(t, "code=abcdefghijklmnop&next=%2F%2Fevil.example%2Fphish")
	assert.Equal(t, "example.com", loc.Host)
	assert.Equal(t, "/profile", loc.Path)
}

func TestCallbackAccountLinking(t *testing.T) {
	t.Parallel()

	t.Run("password account needs linking", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		user := oauthUser(5 * time.Second)
		existing := identity.User{ID: "22222222-2222-2222-2222-222222222222", Email: user.Email, Providers: []string{"email"}}
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)
		f.idp.On("ListUsersByEmail", mock.Anything, user.Email).Return([]identity.User{*user, existing}, nil)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "/auth/link-account", loc.Path)
		assert.Equal(t, "google", loc.Query().Get("provider"))
		assert.Equal(t, user.Email, loc.Query().Get("email"))
		assert.Nil(t, f.sessions.saved)
		f.provision.AssertNotCalled(t, "ProvisionCustomer", mock.Anything, mock.Anything)

		claims, err := f.tokens.Verify(loc.Query().Get("token"), user.Email, "google")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, claims.ExistingUserID)
		assert.Equal(t, user.ID, claims.NewUserID)
	})

	t.Run("oauth account exists", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		user := oauthUser(5 * time.Second)
		other := identity.User{ID: "33333333-3333-3333-3333-333333333333", Email: user.Email, Providers: []string{"google"}}
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)
		f.idp.On("ListUsersByEmail", mock.Anything, user.Email).Return([]identity.User{other}, nil)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "/login", loc.Path)
		assert.Contains(t, loc.Query().Get("message"), "Google")
		assert.Empty(t, loc.Query().Get("error"))
	})

	t.Run("different oauth provider", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		user := oauthUser(5 * time.Second)
		other := identity.User{ID: "33333333-3333-3333-3333-333333333333", Email: user.Email, Providers: []string{"github"}}
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)
		f.idp.On("ListUsersByEmail", mock.Anything, user.Email).Return([]identity.User{other}, nil)

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "/login", loc.Path)
		assert.Contains(t, loc.Query().Get("error"), "contact support")
	})

	t.Run("lookup failure continues signup", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		user := oauthUser(5 * time.Second)
		f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)
		f.idp.On("ListUsersByEmail", mock.Anything, user.Email).Return(nil, identity.ErrMissingAdminKey)
		f.provision.On("ProvisionCustomer", mock.Anything, user).Return()

		loc := f.get(t, "code=abcdefghijklmnop")
		assert.Equal(t, "/profile/setup", loc.Path)
	})
}

func TestCallbackProvisioningFailureKeepsRedirect(t *testing.T) {
	t.Parallel()

	b := &billingmock.Provider{}
	b.On("EnsureCustomer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Join(billing.ErrProvider, errors.New("stripe down")))
	runner := provision.NewRunner(provision.WithTimeout(time.Second))

	f := newFixture(t, callback.WithProvisioner(provision.NewService(b, runner)))
	user := oauthUser(5 * time.Second)
	f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), user, nil)
	f.idp.On("ListUsersByEmail", mock.Anything, user.Email).Return([]identity.User{*user}, nil)

	loc := f.get(t, "code=abcdefghijklmnop")
	assert.Equal(t, "/profile/setup", loc.Path)

	require.NoError(t, runner.Wait(context.Background()))
	b.AssertExpectations(t)
}

func TestCallbackPanicRedirectsToLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("provider exploded") })

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abcdefghijklmnop", nil))
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, callback.MsgUnexpected, loc.Query().Get("error"))
}

func TestCallbackSessionSaveFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.sessions.saveErr = errors.New("cookie too large")
	f.idp.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(session(), oauthUser(time.Hour), nil)

	loc := f.get(t, "code=abcdefghijklmnop")
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, callback.MsgUnexpected, loc.Query().Get("error"))
}
