package cookie

import "errors"

var (
	ErrInvalidKey       = errors.New("cookie.invalid_key")
	ErrInvalidSignature = errors.New("cookie.invalid_signature")
	ErrDecryptionFailed = errors.New("cookie.decryption_failed")
	ErrCookieNotFound   = errors.New("cookie.not_found")
	ErrInvalidFormat    = errors.New("cookie.invalid_format")
)
