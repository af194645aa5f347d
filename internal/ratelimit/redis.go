package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/storyforge/internal/storage"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript mirrors Apply. Timestamps are unix milliseconds.
var fixedWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'request_count', 'window_start')
local count = tonumber(state[1])
local start = tonumber(state[2])
if count == nil or start == nil or now - start >= window then
	redis.call('HSET', KEYS[1], 'request_count', 1, 'window_start', now)
	return {1, now, 1}
end
if count >= limit then
	return {count, start, 0}
end
count = redis.call('HINCRBY', KEYS[1], 'request_count', 1)
return {count, start, 1}
`)

// RedisStore runs each check as one Lua script, so checks for a key never interleave.
type RedisStore struct {
	redis *storage.RedisClient
}

func NewRedisStore(redis *storage.RedisClient) *RedisStore {
	return &RedisStore{redis: redis}
}

func redisKey(key Key) string {
	return fmt.Sprintf("ratelimit:fixed:%s:%s", key.Function, key.UserID)
}

func (r *RedisStore) Hit(ctx context.Context, key Key, policy Policy, now time.Time) (Hit, error) {
	res, err := r.redis.RunScript(ctx, fixedWindowScript, []string{redisKey(key)},
		now.UnixMilli(), policy.Window.Milliseconds(), policy.Limit)
	if err != nil {
		return Hit{}, err
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Hit{}, fmt.Errorf("unexpected script result: %v", res)
	}

	count, ok1 := values[0].(int64)
	start, ok2 := values[1].(int64)
	allowed, ok3 := values[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return Hit{}, fmt.Errorf("unexpected script result types: %v", values)
	}

	return Hit{
		Allowed:     allowed == 1,
		Count:       int(count),
		WindowStart: time.UnixMilli(start),
	}, nil
}
