// Package secrets derives purpose-bound keys from the single APP_SECRET so
// that cookie encryption, cookie signing and linking tokens never share key
// material.
package secrets

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length of every derived key (AES-256 / HMAC-SHA256).
	KeySize = 32
	// MinMasterLength is the minimum accepted length of the master secret.
	MinMasterLength = 32

	salt = "launchkit-keys-v1"
)

// Key purposes.
const (
	PurposeCookieSigning    = "cookie-signing"
	PurposeCookieEncryption = "cookie-encryption"
	PurposeLinkingToken     = "linking-token"
)

var (
	ErrMasterTooShort      = errors.New("master secret must be at least 32 bytes")
	ErrEmptyPurpose        = errors.New("key purpose cannot be empty")
	ErrKeyDerivationFailed = errors.New("key derivation failed")
)

// Derive returns a KeySize key for purpose using HKDF-SHA256.
func Derive(master []byte, purpose string) ([]byte, error) {
	if len(master) < MinMasterLength {
		return nil, ErrMasterTooShort
	}
	if purpose == "" {
		return nil, ErrEmptyPurpose
	}

	r := hkdf.New(sha256.New, master, []byte(salt), []byte(purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	return key, nil
}

// Keyring holds the keys derived from one master secret.
type Keyring struct {
	CookieSigning    []byte
	CookieEncryption []byte
	LinkingToken     []byte
}

// NewKeyring derives every key the service needs from master.
func NewKeyring(master string) (*Keyring, error) {
	var (
		kr  Keyring
		err error
	)
	targets := []struct {
		purpose string
		dst     *[]byte
	}{
		{PurposeCookieSigning, &kr.CookieSigning},
		{PurposeCookieEncryption, &kr.CookieEncryption},
		{PurposeLinkingToken, &kr.LinkingToken},
	}
	for _, t := range targets {
		if *t.dst, err = Derive([]byte(master), t.purpose); err != nil {
			return nil, err
		}
	}
	return &kr, nil
}
