package repository

import (
	"context"
	"testing"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)

	logger := zerolog.Nop()
	locker := NewRedisLocker(client, 10*time.Second, 100*time.Millisecond, &logger)
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, 1)
		require.NoError(t, err)
		assert.True(t, s.Exists(lockKey(1)))
		assert.True(t, s.TTL(lockKey(1)) > 0)

		unlock()
		assert.False(t, s.Exists(lockKey(1)))
	})

	t.Run("SecondHolderWaitsThenTimesOut", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, 2)
		require.NoError(t, err)
		defer unlock()

		_, err = locker.Lock(ctx, 2)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("WaiterAcquiresAfterRelease", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, 3)
		require.NoError(t, err)

		go func() {
			time.Sleep(30 * time.Millisecond)
			unlock()
		}()

		slow := NewRedisLocker(client, 10*time.Second, time.Second, &logger)
		unlock2, err := slow.Lock(ctx, 3)
		require.NoError(t, err)
		unlock2()
	})

	t.Run("ReleaseDoesNotStealForeignLock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, 4)
		require.NoError(t, err)

		// The holder's TTL lapses and another instance takes the key.
		s.FastForward(11 * time.Second)
		require.NoError(t, s.Set(lockKey(4), "other-token"))

		unlock()
		got, err := s.Get(lockKey(4))
		require.NoError(t, err)
		assert.Equal(t, "other-token", got)
	})

	t.Run("NilClient", func(t *testing.T) {
		_, err := NewRedisLocker(nil, time.Second, time.Second, &logger).Lock(ctx, 1)
		assert.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	assert.NoError(t, Ping(context.Background(), client))

	s.Close()
	assert.Error(t, Ping(context.Background(), client))
}
