// Package token produces compact signed tokens: base64url(JSON payload) "."
// base64url(truncated HMAC-SHA256). Payloads that implement Expirer are
// rejected once expired.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const sigSize = 16

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrSignatureInvalid = errors.New("signature mismatch")
	ErrExpired          = errors.New("token expired")
	ErrEmptySecret      = errors.New("token secret cannot be empty")
)

// Expirer is implemented by payloads carrying their own expiry.
type Expirer interface {
	ExpiredAt(now time.Time) bool
}

// GenerateToken signs the JSON encoding of payload with secret.
func GenerateToken[T any](payload T, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(sign(data, secret)), nil
}

// ParseToken verifies the signature, decodes the payload and, for Expirer
// payloads, checks the expiry against time.Now.
func ParseToken[T any](tok string, secret []byte) (T, error) {
	return ParseTokenAt[T](tok, secret, time.Now())
}

// ParseTokenAt is ParseToken with an explicit clock.
func ParseTokenAt[T any](tok string, secret []byte, now time.Time) (T, error) {
	var payload T
	if len(secret) == 0 {
		return payload, ErrEmptySecret
	}

	encData, encSig, ok := strings.Cut(tok, ".")
	if !ok || encData == "" || encSig == "" {
		return payload, ErrInvalidToken
	}
	data, err := base64.RawURLEncoding.DecodeString(encData)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	if subtle.ConstantTimeCompare(sig, sign(data, secret)) != 1 {
		return payload, ErrSignatureInvalid
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, errors.Join(ErrInvalidToken, err)
	}
	if exp, ok := any(payload).(Expirer); ok && exp.ExpiredAt(now) {
		return payload, ErrExpired
	}
	return payload, nil
}

func sign(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)[:sigSize]
}
