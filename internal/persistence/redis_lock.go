package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReleaseFunc gives up a held lock.
type ReleaseFunc func(ctx context.Context) error

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock is a best-effort leader lock built on SET NX PX.
type RedisLock struct {
	client *redis.Client
	key    string
}

// NewRedisLock returns a lock stored under key.
func NewRedisLock(client *redis.Client, key string) *RedisLock {
	return &RedisLock{client: client, key: key}
}

// TryAcquire attempts to take the lock for ttl. ok is false when another
// holder owns it.
func (l *RedisLock) TryAcquire(ctx context.Context, ttl time.Duration) (ReleaseFunc, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}

// LocalLock serializes holders inside one process. It stands in for
// RedisLock when no Redis is configured.
type LocalLock struct {
	mu sync.Mutex
}

// TryAcquire never blocks; ttl is ignored.
func (l *LocalLock) TryAcquire(_ context.Context, _ time.Duration) (ReleaseFunc, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, true, nil
}
