// Package lock provides per-record mutual exclusion for workflow mutations.
//
// LocalLocker serves a single process. RedisLocker extends the same guarantee
// across processes sharing one record database, for example the HTTP server
// and a CLI batch started alongside it.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"covercat/internal/config"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("lock held")

// Locker acquires non-blocking per-key locks. The returned release function
// is safe to call more than once.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal constructs an in-process locker.
func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// TryLock acquires key or returns ErrLocked.
func (l *LocalLocker) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// Shared reports whether l also excludes holders in other processes.
func Shared(l Locker) bool {
	_, ok := l.(*RedisLocker)
	return ok
}

// FromConfig returns a RedisLocker when lock.redis_addr is configured and a
// LocalLocker otherwise. The close function releases the redis client.
func FromConfig(ctx context.Context, cfg *config.Config) (Locker, func() error, error) {
	if cfg == nil || cfg.Lock.RedisAddr == "" {
		return NewLocal(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Lock.RedisAddr, err)
	}
	return NewRedis(client, cfg.Lock.KeyPrefix, cfg.LockTTL()), client.Close, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 10 * time.Minute
	}
	return ttl
}
