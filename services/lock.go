package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"alertreport/models"
)

// RunLock keeps two runs for the same window from overlapping.
type RunLock interface {
	// Acquire returns a release func, or ErrRunInProgress when the window is
	// already held.
	Acquire(ctx context.Context, window models.TimeWindow) (func(context.Context), error)
}

const DefaultLockTTL = 30 * time.Minute

var releaseLockScript = goredis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
else
  return 0
end
`)

// RedisRunLock is a lease in Redis keyed on the window start. The lease
// expires after ttl so a crashed run cannot block the window forever.
type RedisRunLock struct {
	client goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisRunLock(client goredis.UniversalClient, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisRunLock{client: client, ttl: ttl, prefix: "alertreport:run"}
}

func (l *RedisRunLock) key(window models.TimeWindow) string {
	return fmt.Sprintf("%s:%d", l.prefix, window.StartMillis())
}

func (l *RedisRunLock) Acquire(ctx context.Context, window models.TimeWindow) (func(context.Context), error) {
	key := l.key(window)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, transportError("acquire run lock", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	release := func(ctx context.Context) {
		releaseLockScript.Run(ctx, l.client, []string{key}, token) //nolint:errcheck
	}
	return release, nil
}
