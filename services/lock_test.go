package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertreport/models"
)

func setupRunLock(t *testing.T) (*RedisRunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRunLock(client, time.Minute), mr
}

func lockWindow(day int) models.TimeWindow {
	start := time.Date(2023, 6, day, 0, 0, 0, 0, time.UTC)
	return models.TimeWindow{Start: start, End: start.AddDate(0, 0, 6)}
}

func TestRedisRunLock_BlocksSameWindow(t *testing.T) {
	lock, _ := setupRunLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, lockWindow(5))
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, lockWindow(5))
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, err = lock.Acquire(ctx, lockWindow(12))
	assert.NoError(t, err, "a different window is independent")

	release(ctx)
	_, err = lock.Acquire(ctx, lockWindow(5))
	assert.NoError(t, err)
}

func TestRedisRunLock_Expires(t *testing.T) {
	lock, mr := setupRunLock(t)
	ctx := context.Background()

	_, err := lock.Acquire(ctx, lockWindow(5))
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = lock.Acquire(ctx, lockWindow(5))
	assert.NoError(t, err)
}

func TestRedisRunLock_ReleaseKeepsForeignLease(t *testing.T) {
	lock, mr := setupRunLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, lockWindow(5))
	require.NoError(t, err)

	// Lease expired and another run took the window.
	mr.FastForward(2 * time.Minute)
	_, err = lock.Acquire(ctx, lockWindow(5))
	require.NoError(t, err)

	release(ctx)
	assert.True(t, mr.Exists(lock.key(lockWindow(5))), "stale release must not drop the new lease")
}

func TestRedisRunLock_Unreachable(t *testing.T) {
	lock, mr := setupRunLock(t)
	mr.Close()

	_, err := lock.Acquire(context.Background(), lockWindow(5))
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}
