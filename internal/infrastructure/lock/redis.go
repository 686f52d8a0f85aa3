package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tradedoc-ledger:lock:"

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker holds per-document check locks in Redis so that sweeps
// running in different processes never check the same document at once.
type RedisLocker struct {
	client redisClient
	ping   func(context.Context) error
	closer func() error
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another sweep is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(addr, password string, db int) (*RedisLocker, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLocker{
		client: client,
		ping:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
		closer: client.Close,
	}, nil
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	if l.ping == nil {
		return nil
	}
	if err := l.ping(ctx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (l *RedisLocker) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be positive")
	}
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
