package ratelimiter

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// consumeScript refills and consumes atomically. Times are unix milliseconds.
var consumeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local n = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local intervals = math.floor((now - last) / interval)
if intervals > 0 then
  tokens = math.min(capacity, tokens + intervals * rate)
  last = last + intervals * interval
end

local remaining = tokens - n
if remaining >= 0 then
  tokens = remaining
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last', last)
redis.call('PEXPIRE', KEYS[1], ttl)
return {remaining, last + interval}
`)

// RedisStore shares buckets between instances.
type RedisStore struct {
	client redis.Scripter
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, now time.Time, cfg Config) (int, time.Time, error) {
	vals, err := consumeScript.Run(ctx, s.client, []string{redisKeyPrefix + key},
		cfg.Capacity,
		cfg.RefillRate,
		cfg.RefillInterval.Milliseconds(),
		now.UnixMilli(),
		tokens,
		cfg.fullAfter().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return 0, time.Time{}, ErrStoreUnavailable
	}
	return int(vals[0]), time.UnixMilli(vals[1]), nil
}
