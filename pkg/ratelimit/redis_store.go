package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript увеличивает счетчик и выставляет TTL только при создании окна
// или если TTL у ключа потерян. Возвращает {count, pttl}.
var incrementScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if current == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

const scanBatch = 100

// RedisStore хранилище счетчиков в Redis.
// Атомарность инкремента обеспечивается Lua скриптом, блокировок в процессе нет.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создает хранилище поверх клиента Redis
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Increment атомарно увеличивает счетчик окна
func (r *RedisStore) Increment(ctx context.Context, key string, period time.Duration) (int64, time.Duration, error) {
	res, err := incrementScript.Run(ctx, r.client, []string{key}, period.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// Get возвращает значение счетчика и оставшийся TTL
func (r *RedisStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	count, err := getCmd.Int64()
	if err == redis.Nil {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse rate limit counter: %w", err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}

// Delete удаляет счетчик
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete rate limit counter: %w", err)
	}
	return nil
}

// scanKeys обходит ключи через SCAN, не блокируя сервер как KEYS
func (r *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan rate limit keys: %w", err)
	}
	return keys, nil
}

// Scan возвращает счетчики под шаблоном. Ключи, истекшие во время обхода, пропускаются.
func (r *RedisStore) Scan(ctx context.Context, pattern string) ([]Counter, error) {
	keys, err := r.scanKeys(ctx, pattern)
	if err != nil || len(keys) == 0 {
		return nil, err
	}

	pipe := r.client.Pipeline()
	gets := make([]*redis.StringCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		gets[i] = pipe.Get(ctx, key)
		ttls[i] = pipe.PTTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read rate limit counters: %w", err)
	}

	counters := make([]Counter, 0, len(keys))
	for i, key := range keys {
		count, err := gets[i].Int64()
		if err != nil {
			continue
		}
		ttl := ttls[i].Val()
		if ttl < 0 {
			ttl = 0
		}
		counters = append(counters, Counter{Key: key, Count: count, TTL: ttl})
	}
	return counters, nil
}

// DeleteMatching удаляет счетчики под шаблоном
func (r *RedisStore) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	keys, err := r.scanKeys(ctx, pattern)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete rate limit counters: %w", err)
	}
	return int(deleted), nil
}
