// Package cookie writes and reads plain, signed and encrypted cookies.
// Signed values use HMAC-SHA256; encrypted values use AES-256-GCM. The two
// operations use separate keys.
package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const keySize = 32

// Manager handles cookie operations with shared defaults.
type Manager struct {
	signKey  []byte
	aead     cipher.AEAD
	defaults Options
}

// New creates a Manager. Both keys must be 32 bytes.
func New(signKey, encKey []byte, opts ...Option) (*Manager, error) {
	if len(signKey) != keySize || len(encKey) != keySize {
		return nil, fmt.Errorf("%w: keys must be %d bytes", ErrInvalidKey, keySize)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}

	defaults := applyOptions(Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}, opts)

	return &Manager{signKey: signKey, aead: aead, defaults: defaults}, nil
}

// Set writes a plain cookie.
func (m *Manager) Set(w http.ResponseWriter, name, value string, opts ...Option) {
	o := applyOptions(m.defaults, opts)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	})
}

// Get reads a plain cookie.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrCookieNotFound
		}
		return "", err
	}
	return c.Value, nil
}

// Delete expires the cookie on the client.
func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     m.defaults.Path,
		Domain:   m.defaults.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   m.defaults.Secure,
		HttpOnly: m.defaults.HttpOnly,
		SameSite: m.defaults.SameSite,
	})
}

// SetSigned writes value with an HMAC signature. The value stays readable by the client.
func (m *Manager) SetSigned(w http.ResponseWriter, name, value string, opts ...Option) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))
	m.Set(w, name, encoded+"."+m.sign(name, encoded), opts...)
}

// GetSigned reads and verifies a signed cookie.
func (m *Manager) GetSigned(r *http.Request, name string) (string, error) {
	raw, err := m.Get(r, name)
	if err != nil {
		return "", err
	}
	encoded, sig, ok := strings.Cut(raw, ".")
	if !ok {
		return "", ErrInvalidFormat
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(m.sign(name, encoded))) != 1 {
		return "", ErrInvalidSignature
	}
	value, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidFormat
	}
	return string(value), nil
}

// SetEncrypted writes value encrypted with AES-GCM. The cookie name is bound
// as additional data, so ciphertexts cannot be swapped between cookies.
func (m *Manager) SetEncrypted(w http.ResponseWriter, name, value string, opts ...Option) error {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	sealed := m.aead.Seal(nonce, nonce, []byte(value), []byte(name))
	m.Set(w, name, base64.RawURLEncoding.EncodeToString(sealed), opts...)
	return nil
}

// GetEncrypted reads and decrypts an encrypted cookie.
func (m *Manager) GetEncrypted(r *http.Request, name string) (string, error) {
	raw, err := m.Get(r, name)
	if err != nil {
		return "", err
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", ErrInvalidFormat
	}
	ns := m.aead.NonceSize()
	if len(data) < ns {
		return "", ErrInvalidFormat
	}
	plain, err := m.aead.Open(nil, data[:ns], data[ns:], []byte(name))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// SetJSON encrypts the JSON encoding of v into the cookie.
func (m *Manager) SetJSON(w http.ResponseWriter, name string, v any, opts ...Option) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cookie %s: %w", name, err)
	}
	return m.SetEncrypted(w, name, string(data), opts...)
}

// GetJSON decrypts the cookie and decodes it into dst.
func (m *Manager) GetJSON(r *http.Request, name string, dst any) error {
	data, err := m.GetEncrypted(r, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return errors.Join(ErrInvalidFormat, err)
	}
	return nil
}

func (m *Manager) sign(name, encoded string) string {
	mac := hmac.New(sha256.New, m.signKey)
	mac.Write([]byte(name))
	mac.Write([]byte{0})
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
