package ratelimiter

import (
	"fmt"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Limit     int
	Remaining int       // negative when the request was rejected
	ResetAt   time.Time // next refill
}

// Allowed reports whether the request fit in the bucket.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for allowed requests.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Config is a token bucket: Capacity requests in a burst, refilled by
// RefillRate every RefillInterval.
type Config struct {
	Capacity       int           `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`
	RefillRate     int           `env:"AUTH_RATE_LIMIT_REFILL" envDefault:"1"`
	RefillInterval time.Duration `env:"AUTH_RATE_LIMIT_INTERVAL" envDefault:"30s"`
}

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.RefillRate <= 0:
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	case c.RefillInterval <= 0:
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// fullAfter is how long an untouched bucket takes to refill completely.
// State older than that is equivalent to a fresh bucket.
func (c Config) fullAfter() time.Duration {
	intervals := (c.Capacity + c.RefillRate - 1) / c.RefillRate
	return time.Duration(intervals) * c.RefillInterval
}
