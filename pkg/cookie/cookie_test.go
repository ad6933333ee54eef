package cookie_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/cookie"
	"github.com/dmitrymomot/launchkit/pkg/secrets"
)

func newManager(t *testing.T, opts ...cookie.Option) *cookie.Manager {
	t.Helper()
	kr, err := secrets.NewKeyring(strings.Repeat("s", 48))
	require.NoError(t, err)
	m, err := cookie.NewFromConfig(cookie.Config{Path: "/", Secure: true, SameSite: http.SameSiteLaxMode}, kr, opts...)
	require.NoError(t, err)
	return m
}

// replay copies cookies set on rec into a fresh request.
func replay(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := cookie.New([]byte("short"), make([]byte, 32))
	assert.ErrorIs(t, err, cookie.ErrInvalidKey)

	_, err = cookie.NewFromConfig(cookie.Config{}, nil)
	assert.ErrorIs(t, err, cookie.ErrInvalidKey)
}

func TestPlain(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	rec := httptest.NewRecorder()
	m.Set(rec, "pkce_verifier", "abc", cookie.WithMaxAge(600))

	c := rec.Result().Cookies()[0]
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, 600, c.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)

	v, err := m.Get(replay(rec), "pkce_verifier")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = m.Get(httptest.NewRequest(http.MethodGet, "/", nil), "missing")
	assert.ErrorIs(t, err, cookie.ErrCookieNotFound)
}

func TestSigned(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	rec := httptest.NewRecorder()
	m.SetSigned(rec, "flag", "value")
	v, err := m.GetSigned(replay(rec), "flag")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	t.Run("tampered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		orig := rec.Result().Cookies()[0].Value
		req.AddCookie(&http.Cookie{Name: "flag", Value: "dGFtcGVyZWQ." + strings.SplitN(orig, ".", 2)[1]})
		_, err := m.GetSigned(req, "flag")
		assert.ErrorIs(t, err, cookie.ErrInvalidSignature)
	})

	t.Run("renamed cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "other", Value: rec.Result().Cookies()[0].Value})
		_, err := m.GetSigned(req, "other")
		assert.ErrorIs(t, err, cookie.ErrInvalidSignature)
	})
}

func TestEncryptedJSON(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	type session struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetJSON(rec, "sb_session", session{AccessToken: "at", ExpiresAt: 42}))
	assert.NotContains(t, rec.Result().Cookies()[0].Value, "at")

	var got session
	require.NoError(t, m.GetJSON(replay(rec), "sb_session", &got))
	assert.Equal(t, session{AccessToken: "at", ExpiresAt: 42}, got)

	t.Run("other key cannot decrypt", func(t *testing.T) {
		other, err := secrets.NewKeyring(strings.Repeat("z", 48))
		require.NoError(t, err)
		m2, err := cookie.NewFromConfig(cookie.Config{}, other)
		require.NoError(t, err)
		var s session
		assert.ErrorIs(t, m2.GetJSON(replay(rec), "sb_session", &s), cookie.ErrDecryptionFailed)
	})

	t.Run("garbage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "sb_session", Value: "!!"})
		var s session
		assert.ErrorIs(t, m.GetJSON(req, "sb_session", &s), cookie.ErrInvalidFormat)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()
	m := newManager(t)

	rec := httptest.NewRecorder()
	m.Delete(rec, "sb_session")
	c := rec.Result().Cookies()[0]
	assert.Equal(t, "sb_session", c.Name)
	assert.Equal(t, -1, c.MaxAge)
}
