package ratelimiter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBucket(t *testing.T, c *clock) *ratelimiter.Bucket {
	t.Helper()
	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(0), ratelimiter.Config{
		Capacity:       3,
		RefillRate:     1,
		RefillInterval: 10 * time.Second,
	}, ratelimiter.WithClock(c.Now))
	require.NoError(t, err)
	return b
}

func TestNewBucketValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  ratelimiter.Config
	}{
		{"zero capacity", ratelimiter.Config{RefillRate: 1, RefillInterval: time.Second}},
		{"zero rate", ratelimiter.Config{Capacity: 1, RefillInterval: time.Second}},
		{"zero interval", ratelimiter.Config{Capacity: 1, RefillRate: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(0), tt.cfg)
			assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
		})
	}
}

func TestBucket(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := newBucket(t, c)
	ctx := context.Background()

	for i := range 3 {
		res, err := b.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := b.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, 10*time.Second, res.RetryAfter(c.Now()))

	other, err := b.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed(), "keys are independent")

	c.Advance(10 * time.Second)
	res, err = b.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, 0, res.Remaining)

	_, err = b.AllowN(ctx, "1.2.3.4", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestBucketRefillIsCapped(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Now()}
	b := newBucket(t, c)
	ctx := context.Background()

	_, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	c.Advance(time.Hour)

	res, err := b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestComposite(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1:/login", ratelimiter.Composite(ratelimiter.ByIP, ratelimiter.ByPath)(r))

	r.URL.Path = "/" + strings.Repeat("a", 100)
	key := ratelimiter.Composite(ratelimiter.ByIP, ratelimiter.ByPath)(r)
	assert.NotEmpty(t, key)
	assert.LessOrEqual(t, len(key), 64)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (*ratelimiter.Result, error) {
	return nil, ratelimiter.ErrStoreUnavailable
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	post := func(h http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("throttles after burst", func(t *testing.T) {
		t.Parallel()
		c := &clock{now: time.Now()}
		h := ratelimiter.Middleware(newBucket(t, c), ratelimiter.ByIP)(ok)

		for range 3 {
			assert.Equal(t, http.StatusNoContent, post(h).Code)
		}
		rec := post(h)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("safe methods pass", func(t *testing.T) {
		t.Parallel()
		c := &clock{now: time.Now()}
		h := ratelimiter.Middleware(newBucket(t, c), ratelimiter.ByIP)(ok)
		for range 5 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
	})

	t.Run("custom limit handler", func(t *testing.T) {
		t.Parallel()
		c := &clock{now: time.Now()}
		limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/login?error=slow+down", http.StatusSeeOther)
		})
		h := ratelimiter.Middleware(newBucket(t, c), ratelimiter.ByIP, ratelimiter.WithLimitHandler(limited))(ok)
		for range 3 {
			post(h)
		}
		rec := post(h)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		t.Parallel()
		h := ratelimiter.Middleware(failingLimiter{}, ratelimiter.ByIP)(ok)
		assert.Equal(t, http.StatusNoContent, post(h).Code)
	})
}

func TestMemoryStoreHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := ratelimiter.NewMemoryStore(1).ConsumeTokens(ctx, "k", 1, time.Now(), ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Second})
	assert.True(t, errors.Is(err, context.Canceled))
}
