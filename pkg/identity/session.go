package identity

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/launchkit/pkg/cookie"
)

const (
	// SessionCookie holds the encrypted session token pair.
	SessionCookie = "sb_session"
	// VerifierCookie holds the PKCE code verifier between the OAuth start
	// and the callback.
	VerifierCookie = "pkce_verifier"

	verifierMaxAge = 600
	sessionMaxAge  = 60 * 60 * 24 * 30
)

// SessionStore persists the provider session in request cookies.
type SessionStore struct {
	cookies *cookie.Manager
}

func NewSessionStore(cookies *cookie.Manager) *SessionStore {
	return &SessionStore{cookies: cookies}
}

// Load returns the session carried by r. Missing or tampered cookies yield
// ErrNoSession.
func (s *SessionStore) Load(r *http.Request) (*Session, error) {
	var sess Session
	if err := s.cookies.GetJSON(r, SessionCookie, &sess); err != nil {
		if errors.Is(err, cookie.ErrCookieNotFound) {
			return nil, ErrNoSession
		}
		return nil, errors.Join(ErrNoSession, err)
	}
	if sess.AccessToken == "" {
		return nil, ErrNoSession
	}
	return &sess, nil
}

func (s *SessionStore) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil || sess.AccessToken == "" {
		return ErrNoSession
	}
	return s.cookies.SetJSON(w, SessionCookie, sess, cookie.WithMaxAge(sessionMaxAge))
}

func (s *SessionStore) Clear(w http.ResponseWriter) {
	s.cookies.Delete(w, SessionCookie)
}

// SaveVerifier stores the PKCE verifier for the pending OAuth flow.
func (s *SessionStore) SaveVerifier(w http.ResponseWriter, verifier string) error {
	return s.cookies.SetEncrypted(w, VerifierCookie, verifier, cookie.WithMaxAge(verifierMaxAge))
}

// TakeVerifier reads the PKCE verifier and deletes its cookie. It is single use.
func (s *SessionStore) TakeVerifier(w http.ResponseWriter, r *http.Request) (string, error) {
	v, err := s.cookies.GetEncrypted(r, VerifierCookie)
	s.cookies.Delete(w, VerifierCookie)
	if err != nil || v == "" {
		return "", ErrNoVerifier
	}
	return v, nil
}
