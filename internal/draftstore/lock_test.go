package draftstore

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseLocker(t *testing.T, l Locker) {
	ctx := context.Background()

	unlock, err := l.Obtain(ctx, "abc", 5*time.Second)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "abc", 5*time.Second)
	require.ErrorIs(t, err, ErrLocked)

	other, err := l.Obtain(ctx, "def", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	again, err := l.Obtain(ctx, "abc", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestMemoryLocker(t *testing.T) {
	exerciseLocker(t, NewMemoryLocker())
}

func TestRedisLocker(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	exerciseLocker(t, NewRedisLocker(client, ""))
}
