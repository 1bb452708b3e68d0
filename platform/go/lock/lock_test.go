package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestLocalLocker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := NewLocalLocker()

	held, err := locker.Acquire(ctx, "tenant-1:ga4", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "tenant-1:ga4", time.Minute)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	other, err := locker.Acquire(ctx, "tenant-1:youtube", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, held.Release(ctx))
	require.ErrorIs(t, held.Release(ctx), ErrLockNotHeld)

	again, err := locker.Acquire(ctx, "tenant-1:ga4", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLockerExpiry(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.now = func() time.Time { return clock }

	stale, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Second)
	fresh, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	require.ErrorIs(t, stale.Release(context.Background()), ErrLockNotHeld)
	require.NoError(t, fresh.Release(context.Background()))
}

func TestWithLockReleasesOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := NewLocalLocker()
	boom := errors.New("boom")

	err := WithLock(ctx, locker, "k", time.Minute, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	err = WithLock(ctx, locker, "k", time.Minute, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, "test-lock:")

	held, err := locker.Acquire(ctx, "tenant-1:ga4", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "tenant-1:ga4", time.Minute)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, held.Release(ctx))
	require.ErrorIs(t, held.Release(ctx), ErrLockNotHeld)
}
