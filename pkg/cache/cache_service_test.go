package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "test:"), mr
}

func TestCacheImplementations(t *testing.T) {
	redisCache, _ := newRedisCache(t)
	impls := map[string]CacheService{
		"redis":  redisCache,
		"memory": NewMemoryCache(),
	}

	for name, c := range impls {
		c := c
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var got bool
			assert.ErrorIs(t, c.Get(ctx, "rel:follow:1:2", &got), ErrCacheMiss)

			require.NoError(t, c.Set(ctx, "rel:follow:1:2", true, time.Minute))
			require.NoError(t, c.Get(ctx, "rel:follow:1:2", &got))
			assert.True(t, got)

			require.NoError(t, c.SetMultiple(ctx, map[string]interface{}{
				"rel:sub:1:2": false,
				"rel:sub:1:3": true,
			}, time.Minute))

			var flags []*bool
			require.NoError(t, c.GetMultiple(ctx, []string{"rel:sub:1:2", "rel:sub:1:9", "rel:sub:1:3"}, &flags))
			require.Len(t, flags, 3)
			require.NotNil(t, flags[0])
			assert.False(t, *flags[0])
			assert.Nil(t, flags[1])
			require.NotNil(t, flags[2])
			assert.True(t, *flags[2])

			require.NoError(t, c.InvalidatePattern(ctx, "rel:sub:1:*"))
			ok, err := c.Exists(ctx, "rel:sub:1:3")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Delete(ctx, "rel:follow:1:2"))
			ok, err = c.Exists(ctx, "rel:follow:1:2")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisCacheExpiry(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, time.Second))
	mr.FastForward(2 * time.Second)

	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
}
