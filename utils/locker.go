package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the lock.
var ErrNotObtained = errors.New("lock: not obtained")

// releaseScript deletes the key only while it still holds our token, so an
// expired holder never removes a lock taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a single-key mutual exclusion lock with a TTL.
type RedisLocker struct {
	client   lockClient
	prefix   string
	ttl      time.Duration
	newToken func() string
}

type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

func NewRedisLocker(client lockClient, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		newToken: uuid.NewString,
	}
}

// Obtain takes the lock for key. The returned release func is safe to call
// after the TTL has passed.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := l.newToken()

	acquired, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fullKey, err)
	}
	if !acquired {
		return nil, ErrNotObtained
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("unlock %s: %w", fullKey, err)
		}
		return nil
	}
	return release, nil
}
