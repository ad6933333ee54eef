package billing

import "errors"

var (
	ErrMissingAPIKey      = errors.New("billing: provider api key is required")
	ErrUnknownProvider    = errors.New("billing: unknown provider")
	ErrInvalidEnvironment = errors.New("billing: invalid provider environment")
	ErrMissingPrice       = errors.New("billing: price id is required")
	ErrMissingEmail       = errors.New("billing: customer email is required")
	ErrMissingSessionID   = errors.New("billing: checkout session id is required")
	ErrSessionNotFound    = errors.New("billing: checkout session not found")
	ErrNoCheckoutURL      = errors.New("billing: provider returned no checkout url")
	ErrProvider           = errors.New("billing: provider request failed")
)
