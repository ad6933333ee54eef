package linking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/launchkit/pkg/cache"
)

const defaultMemoryCapacity = 10000

// MemoryStore keeps consumed token ids in a bounded in-process LRU. It is
// only single-use within one process.
type MemoryStore struct {
	used *cache.LRUCache[string, struct{}]
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{used: cache.NewLRUCache[string, struct{}](capacity)}
}

func (s *MemoryStore) MarkUsed(_ context.Context, id string, ttl time.Duration) (bool, error) {
	return s.used.PutIfAbsent(id, struct{}{}, ttl), nil
}

// RedisStore marks token ids with SET NX so consumption is single-use across
// every instance sharing the Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "linking:used:"}
}

func (s *RedisStore) MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark linking token used: %w", err)
	}
	return ok, nil
}
