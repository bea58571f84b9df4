// Package lock provides an advisory, TTL-bounded lock keyed by string.
// It backs the per-exchanger single-flight guarantee: at most one sync
// in flight per exchanger, drop-if-busy rather than queue.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotAcquired is returned when the lock is already held
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires and releases advisory TTL locks. Acquire returns a
// token that must be passed back to Release so a holder cannot release
// a lock it lost to TTL expiry.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

// RedisLocker implements Locker with SET NX on Redis
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed Locker
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// releaseScript deletes the key only while the holder's token matches
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Acquire attempts to take the lock, failing fast with ErrNotAcquired
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAcquired
	}
	return token, nil
}

// Release frees the lock if the token still owns it
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	return l.client.Eval(ctx, releaseScript, []string{key}, token).Err()
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is an in-process Locker used in tests and when Redis is
// disabled.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

// NewMemoryLocker creates an empty in-memory Locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryLock)}
}

// Acquire attempts to take the lock, failing fast with ErrNotAcquired
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.locks[key]; ok && time.Now().Before(held.expiresAt) {
		return "", ErrNotAcquired
	}
	token := uuid.NewString()
	l.locks[key] = memoryLock{token: token, expiresAt: time.Now().Add(ttl)}
	return token, nil
}

// Release frees the lock if the token still owns it
func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.locks[key]; ok && held.token == token {
		delete(l.locks, key)
	}
	return nil
}
