// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ repository.Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	c       *Client
	retries int
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{c: c, retries: 3}
}

// TryLock returns a token to pass to Unlock, or domain.ErrLockNotAcquired when
// another holder still owns the key.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (string, error) {
	key := l.c.keys.lock(name)
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.retries; i++ {
		ok, err := l.c.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond): // wait before retrying
		}
	}
	if lastErr != nil {
		return "", domain.NewStoreError("lock", lastErr)
	}
	return "", domain.ErrLockNotAcquired
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, name, token string) error {
	if err := luaUnlock.Run(ctx, l.c.cli, []string{l.c.keys.lock(name)}, token).Err(); err != nil {
		return domain.NewStoreError("unlock", err)
	}
	return nil
}
