package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTimeout is returned when a lock could not be taken within the wait budget.
var ErrTimeout = errors.New("lock wait timeout")

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a lease lock stored in Redis, shared by every process
// using the same Redis. A holder that dies loses the lock after ttl. While
// held, the lease is renewed every ttl/3; if renewals keep failing for a
// whole ttl (Redis unreachable) another process may take the lock before the
// holder releases it.
type RedisLocker struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder can
// block others and sets the renewal period; wait bounds how long Acquire
// polls before giving up.
func NewRedisLocker(redisClient *redis.Client, prefix string, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *RedisLocker) key(k string) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, k)
}

// Acquire polls SET NX with a backoff capped at 100ms.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	rkey := l.key(key)

	deadline := time.Now().Add(l.wait)
	backoff := 5 * time.Millisecond

	for {
		ok, err := l.redis.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire %s: %w", key, ErrTimeout)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(rkey, token, done, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped

			// Release must run even if the caller's ctx is already canceled.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.redis, []string{rkey}, token).Err(); err != nil {
				slog.Warn("failed to release queue lock", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive extends the lease until done is closed or the lease is lost.
func (l *RedisLocker) keepAlive(rkey, token string, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewScript.Run(ctx, l.redis, []string{rkey}, token, l.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			slog.Warn("failed to renew queue lock", "key", rkey, "error", err)
			continue
		}
		if n == 0 {
			slog.Error("queue lock lease lost", "key", rkey)
			return
		}
	}
}
