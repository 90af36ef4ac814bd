package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSetDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), b)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Ping(ctx))
}

func TestGuard_AcquireOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	g := NewGuard(mr.Addr())
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "notify:tx:outbound.delivered", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "notify:tx:outbound.delivered", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, g.Release(ctx, "notify:tx:outbound.delivered"))
	ok, err = g.Acquire(ctx, "notify:tx:outbound.delivered", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGuard_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	g := NewGuard(mr.Addr())
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = g.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	mr.FastForward(2 * time.Minute)
	ok, n, _ = rl.Allow(ctx, "rl:test", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}
