package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maru-platform/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	allowedValue = "1"
	redisBackend = "redis"
)

// storeIfCurrentScript writes an entry only while the generation is unchanged,
// so a lookup that raced an Invalidate cannot repopulate the cache.
var storeIfCurrentScript = redis.NewScript(`
-- KEYS[1] = generation key
-- KEYS[2] = entry key
-- ARGV[1] = generation observed before the source lookup
-- ARGV[2] = ttl_ms
-- ARGV[3] = entry value
--
-- Returns:
--  1 if stored
--  0 if the generation moved on
local gen = redis.call('GET', KEYS[1])
if not gen then
  gen = '0'
end
if gen ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[2])
return 1
`)

// RedisCache is a Cache shared across processes through Redis.
//
// Entries live under "<prefix>:<generation>:<key>". Invalidate bumps the
// generation so every existing entry becomes unreachable at once; stale
// entries age out through their TTL.
type RedisCache struct {
	client  redis.Cmdable
	source  Source
	prefix  string
	ttl     time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

type RedisCacheOptions struct {
	// KeyPrefix namespaces the cache. Defaults to "perm".
	KeyPrefix string
	// TTL bounds how long entries live. Defaults to one hour so orphaned
	// generations do not accumulate.
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewRedisCache(client redis.Cmdable, source Source, opts RedisCacheOptions) *RedisCache {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "perm"
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RedisCache{
		client:  client,
		source:  source,
		prefix:  opts.KeyPrefix,
		ttl:     opts.TTL,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *RedisCache) entryKey(gen int64, k Key) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, k.String())
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) HasPermission(ctx context.Context, k Key) (bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		// Redis down: fall through to the authoritative source without caching.
		c.log.WarnContext(ctx, "permission cache unavailable", "err", err)
		c.metrics.CacheLookup(redisBackend, metrics.CacheFallback)
		return c.lookupSource(ctx, k)
	}

	key := c.entryKey(gen, k)
	v, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil && v == allowedValue:
		c.metrics.CacheLookup(redisBackend, metrics.CacheHit)
		return true, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.log.WarnContext(ctx, "permission cache read failed", "key", key, "err", err)
	}

	c.metrics.CacheLookup(redisBackend, metrics.CacheMiss)
	ok, err := c.lookupSource(ctx, k)
	if err != nil || !ok {
		return ok, err
	}
	stored, err := storeIfCurrentScript.Run(ctx, c.client,
		[]string{c.generationKey(), key}, gen, c.ttl.Milliseconds(), allowedValue).Int()
	switch {
	case err != nil:
		c.log.WarnContext(ctx, "permission cache write failed", "key", key, "err", err)
	case stored == 0:
		c.log.DebugContext(ctx, "permission cache write skipped after invalidate", "key", key)
	}
	return true, nil
}

func (c *RedisCache) lookupSource(ctx context.Context, k Key) (bool, error) {
	ok, err := c.source.HasPermission(ctx, k)
	if err != nil {
		return false, sourceErr(k, err)
	}
	return ok, nil
}

// Invalidate makes every cached decision unreachable, not only those of userID/tenantID.
func (c *RedisCache) Invalidate(ctx context.Context, userID, tenantID int64) error {
	gen, err := c.client.Incr(ctx, c.generationKey()).Result()
	if err != nil {
		return fmt.Errorf("permission: invalidate cache: %w", err)
	}
	c.log.InfoContext(ctx, "permission cache invalidated", "user_id", userID, "tenant_id", tenantID, "generation", gen)
	return nil
}
