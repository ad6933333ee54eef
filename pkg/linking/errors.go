package linking

import "errors"

var (
	ErrLookupFailed     = errors.New("linking: existing account lookup failed")
	ErrInvalidToken     = errors.New("linking: invalid token")
	ErrTokenExpired     = errors.New("linking: token expired")
	ErrTokenMismatch    = errors.New("linking: token does not match email and provider")
	ErrTokenAlreadyUsed = errors.New("linking: token already used")
	ErrEmptySecret      = errors.New("linking: token secret is required")
)
