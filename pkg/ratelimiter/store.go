package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. ConsumeTokens refills the bucket for key up to
// now, takes tokens when enough are left and returns what remains; a
// negative remainder means nothing was taken.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, now time.Time, cfg Config) (remaining int, resetAt time.Time, err error)
}
