package permission

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisCache(t *testing.T, src Source) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, src, RedisCacheOptions{KeyPrefix: "test", TTL: time.Minute}), mr
}

func TestRedisCache_MemoizesPositiveOnly(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	c, mr := setupRedisCache(t, src)

	ok, err := c.HasPermission(ctx, studentRead)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:0:"+studentRead.String()))

	require.NoError(t, src.Grant(ctx, studentRead))
	for i := 0; i < 3; i++ {
		ok, err = c.HasPermission(ctx, studentRead)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int64(2), src.calls.Load())
	assert.True(t, mr.Exists("test:0:"+studentRead.String()))
	assert.Equal(t, time.Minute, mr.TTL("test:0:"+studentRead.String()))
}

func TestRedisCache_InvalidateBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	require.NoError(t, src.Grant(ctx, studentRead))
	c, _ := setupRedisCache(t, src)

	ok, _ := c.HasPermission(ctx, studentRead)
	require.True(t, ok)

	require.NoError(t, src.Revoke(ctx, studentRead))
	require.NoError(t, c.Invalidate(ctx, 99, 99))

	ok, err := c.HasPermission(ctx, studentRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_FallsBackToSourceWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	src := newCountingSource()
	require.NoError(t, src.Grant(ctx, studentRead))
	c, mr := setupRedisCache(t, src)
	mr.Close()

	ok, err := c.HasPermission(ctx, studentRead)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Error(t, c.Invalidate(ctx, 1, 1))
}

func TestRedisCache_SourceFailureSurfaces(t *testing.T) {
	src := newCountingSource()
	src.SetError(assert.AnError)
	c, _ := setupRedisCache(t, src)

	_, err := c.HasPermission(context.Background(), studentRead)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

// invalidatingSource bumps the cache generation while a lookup is in flight.
type invalidatingSource struct {
	*MemorySource
	cache Cache
}

func (s *invalidatingSource) HasPermission(ctx context.Context, k Key) (bool, error) {
	ok, err := s.MemorySource.HasPermission(ctx, k)
	if err == nil {
		err = s.cache.Invalidate(ctx, k.UserID, k.TenantID)
	}
	return ok, err
}

func TestRedisCache_SkipsStoreAfterConcurrentInvalidate(t *testing.T) {
	ctx := context.Background()
	src := &invalidatingSource{MemorySource: NewMemorySource()}
	require.NoError(t, src.Grant(ctx, studentRead))
	c, mr := setupRedisCache(t, src)
	src.cache = c

	ok, err := c.HasPermission(ctx, studentRead)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("test:0:"+studentRead.String()))
	assert.False(t, mr.Exists("test:1:"+studentRead.String()))
}
