package ratelimiter

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrymomot/launchkit/pkg/cache"
)

// DefaultMemoryCapacity bounds how many clients a MemoryStore tracks.
const DefaultMemoryCapacity = 10_000

type bucketState struct {
	tokens     int
	lastRefill time.Time
}

// MemoryStore keeps buckets in a bounded LRU. Evicted or expired buckets
// start over full.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *cache.LRUCache[string, bucketState]
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{buckets: cache.NewLRUCache[string, bucketState](capacity)}
}

func (s *MemoryStore) ConsumeTokens(ctx context.Context, key string, tokens int, now time.Time, cfg Config) (int, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.buckets.Get(key)
	if !ok {
		st = bucketState{tokens: cfg.Capacity, lastRefill: now}
	}
	if intervals := int(now.Sub(st.lastRefill) / cfg.RefillInterval); intervals > 0 {
		st.tokens = min(cfg.Capacity, st.tokens+intervals*cfg.RefillRate)
		st.lastRefill = st.lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
	}

	remaining := st.tokens - tokens
	if remaining >= 0 {
		st.tokens = remaining
	}
	s.buckets.Put(key, st, cfg.fullAfter())
	return remaining, st.lastRefill.Add(cfg.RefillInterval), nil
}
