package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"security-gateway/middleware/admission/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, opts ...RedisStoreOption) (*miniredis.Miniredis, *RedisStore, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newFakeClock()
	opts = append([]RedisStoreOption{WithRedisClock(clock.Now)}, opts...)
	return mr, NewRedisStore(rdb, opts...), clock
}

func TestRedisStore_IncrWindowFixedTTL(t *testing.T) {
	mr, s, _ := newTestRedis(t)
	ctx := context.Background()

	n, ttl, err := s.IncrWindow(ctx, "rate:k", time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, ttl)

	n, _, err = s.IncrWindow(ctx, "rate:k", time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mr.FastForward(61 * time.Second)
	n, _, err = s.IncrWindow(ctx, "rate:k", time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_IncrWindowRefresh(t *testing.T) {
	mr, s, _ := newTestRedis(t)
	ctx := context.Background()

	_, _, err := s.IncrWindow(ctx, "violations:k", time.Hour, true)
	require.NoError(t, err)
	mr.FastForward(50 * time.Minute)

	n, ttl, err := s.IncrWindow(ctx, "violations:k", time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, ttl)
	assert.Equal(t, time.Hour, mr.TTL("violations:k"))
}

func TestRedisStore_IncrWindowRepairsKeyWithoutTTL(t *testing.T) {
	mr, s, _ := newTestRedis(t)
	require.NoError(t, mr.Set("rate:legacy", "4"))

	n, ttl, err := s.IncrWindow(context.Background(), "rate:legacy", time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, time.Minute, ttl)
}

func TestRedisStore_AddToWindowSliding(t *testing.T) {
	mr, s, clock := newTestRedis(t)
	ctx := context.Background()
	t0 := clock.Now()

	for i := 0; i < 3; i++ {
		n, oldest, err := s.AddToWindow(ctx, "rate:w", clock.Now(), 10*time.Second, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), n)
		assert.Equal(t, t0.UnixMilli(), oldest.UnixMilli())
		clock.Advance(time.Second)
	}
	assert.Equal(t, 10*time.Second, mr.TTL("rate:w"))

	clock.Advance(8 * time.Second)
	n, oldest, err := s.AddToWindow(ctx, "rate:w", clock.Now(), 10*time.Second, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, t0.Add(2*time.Second).UnixMilli(), oldest.UnixMilli())
}

func TestRedisStore_AddToWindowFreeAtSkipsDeniedEntries(t *testing.T) {
	_, s, clock := newTestRedis(t)
	ctx := context.Background()
	t0 := clock.Now()

	var n int64
	var freeAt time.Time
	var err error
	for i := 0; i < 7; i++ {
		n, freeAt, err = s.AddToWindow(ctx, "rate:deny", clock.Now(), time.Minute, 5)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	assert.Equal(t, int64(7), n)
	assert.Equal(t, t0.Add(2*time.Second).UnixMilli(), freeAt.UnixMilli())
}

func TestRedisStore_AddToWindowSameInstantKeepsDistinctMembers(t *testing.T) {
	_, s, clock := newTestRedis(t)
	ctx := context.Background()

	var n int64
	var err error
	for i := 0; i < 5; i++ {
		n, _, err = s.AddToWindow(ctx, "rate:burst", clock.Now(), time.Minute, 10)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(5), n)
}

func TestRedisStore_Flags(t *testing.T) {
	mr, s, _ := newTestRedis(t)
	ctx := context.Background()

	ok, err := s.HasFlag(ctx, "blacklist:k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetFlag(ctx, "blacklist:k", 24*time.Hour))
	ok, err = s.HasFlag(ctx, "blacklist:k")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(24 * time.Hour)
	ok, err = s.HasFlag(ctx, "blacklist:k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_PushCappedTrimsAndCounts(t *testing.T) {
	mr, s, clock := newTestRedis(t, WithLogCounters(time.Hour))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.PushCapped(ctx, "logs:attacks", []byte(fmt.Sprintf("e%d", i)), 3))
	}

	got, err := mr.List("logs:attacks")
	require.NoError(t, err)
	assert.Equal(t, []string{"e4", "e3", "e2"}, got)

	bucket := "logs:attacks:minute:" + clock.Now().UTC().Format("200601021504")
	assert.Equal(t, "5", mr.HGet(bucket, "entries"))
}

func TestRedisStore_ErrorsWrapStoreUnavailable(t *testing.T) {
	mr, s, _ := newTestRedis(t)
	ctx := context.Background()
	mr.SetError("LOADING redis is loading")

	_, _, err := s.IncrWindow(ctx, "k", time.Minute, false)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, _, err = s.AddToWindow(ctx, "k", time.Now(), time.Minute, 10)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = s.HasFlag(ctx, "k")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	require.ErrorIs(t, s.SetFlag(ctx, "k", time.Minute), domain.ErrStoreUnavailable)
	require.ErrorIs(t, s.PushCapped(ctx, "k", []byte("x"), 10), domain.ErrStoreUnavailable)
	require.ErrorIs(t, s.Ping(ctx), domain.ErrStoreUnavailable)
}
