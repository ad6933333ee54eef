package callback_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/modules/callback"
	"github.com/dmitrymomot/launchkit/pkg/cookie"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/linking"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
)

const gotrueUserID = "6f1c2a9e-3d4b-4c5d-8e9f-0a1b2c3d4e5f"

type gotrueStack struct {
	store   *identity.SessionStore
	handler *callback.Handler
	hits    *atomic.Int32
}

// newGoTrueStack wires the callback to a real GoTrue client and cookie
// session store, both talking to srv.
func newGoTrueStack(t *testing.T, srv http.HandlerFunc) *gotrueStack {
	t.Helper()

	hits := &atomic.Int32{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		srv(w, r)
	}))
	t.Cleanup(ts.Close)

	idp, err := identity.NewGoTrue(identity.Config{
		URL:            ts.URL,
		AnonKey:        "anon",
		ServiceRoleKey: "service",
		Timeout:        2 * time.Second,
		OAuthProviders: []string{"google"},
	})
	require.NoError(t, err)

	cookies, err := cookie.New([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	store := identity.NewSessionStore(cookies)

	rb, err := redirect.New(redirect.WithBaseURL("http://example.com"))
	require.NoError(t, err)
	tokens, err := linking.NewTokens([]byte("0123456789abcdef0123456789abcdef"), nil)
	require.NoError(t, err)

	return &gotrueStack{
		store:   store,
		handler: callback.New(idp, store, linking.NewResolver(idp), tokens, rb),
		hits:    hits,
	}
}

func gotrueUser(providers ...string) map[string]any {
	return map[string]any{
		"id":                 gotrueUserID,
		"email":              "ada@example.com",
		"email_confirmed_at": "2025-01-01T00:00:00Z",
		"app_metadata":       map[string]any{"providers": providers},
		"user_metadata":      map[string]any{},
		"created_at":         "2025-01-01T00:00:00Z",
		"updated_at":         "2025-01-01T00:00:00Z",
	}
}

func replyJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// storedSession reads the session cookie the handler wrote back through the
// store.
func (s *gotrueStack) storedSession(t *testing.T, rec *httptest.ResponseRecorder) *identity.Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.SessionCookie {
			req.AddCookie(c)
		}
	}
	sess, err := s.store.Load(req)
	require.NoError(t, err)
	return sess
}

func TestCallbackWithGoTrueRecoveryLink(t *testing.T) {
	t.Parallel()

	stack := newGoTrueStack(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/verify":
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "recovery", r.URL.Query().Get("type"))
			assert.Equal(t, "recoveryhash123", r.URL.Query().Get("token"))
			target := r.URL.Query().Get("redirect_to") +
				"#access_token=at-1&refresh_token=rt-1&token_type=bearer&expires_in=3600&type=recovery"
			http.Redirect(w, r, target, http.StatusSeeOther)
		case "/auth/v1/user":
			assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
			replyJSON(w, gotrueUser("email"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rec := httptest.NewRecorder()
	stack.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?token_hash=recoveryhash123&type=recovery", nil))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "http://example.com/update-password", rec.Header().Get("Location"))
	assert.Equal(t, int32(2), stack.hits.Load())

	sess := stack.storedSession(t, rec)
	assert.Equal(t, "at-1", sess.AccessToken)
	assert.Equal(t, "rt-1", sess.RefreshToken)
	assert.False(t, sess.ExpiresAt.IsZero())
}

func TestCallbackWithGoTrueRejectedLink(t *testing.T) {
	t.Parallel()

	stack := newGoTrueStack(t, func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("redirect_to") +
			"#error=access_denied&error_code=otp_expired&error_description=Email+link+is+invalid+or+has+expired"
		http.Redirect(w, r, target, http.StatusSeeOther)
	})

	rec := httptest.NewRecorder()
	stack.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?token_hash=stale&type=signup", nil))

	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, callback.MsgExchangeExpired, loc.Query().Get("error"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestCallbackWithGoTrueOAuthCode(t *testing.T) {
	t.Parallel()

	stack := newGoTrueStack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "oauthcode123", body["code"])
		assert.Equal(t, "verifier-1", body["code_verifier"])
		replyJSON(w, map[string]any{
			"access_token":  "at-2",
			"refresh_token": "rt-2",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          gotrueUser("google"),
		})
	})

	// The OAuth start endpoint leaves the verifier in an encrypted cookie.
	start := httptest.NewRecorder()
	require.NoError(t, stack.store.SaveVerifier(start, "verifier-1"))

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=oauthcode123", nil)
	for _, c := range start.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	stack.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "http://example.com/profile?message=Successfully+signed+in%21", rec.Header().Get("Location"))
	assert.Equal(t, "at-2", stack.storedSession(t, rec).AccessToken)
}
