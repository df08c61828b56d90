package permission

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"maru-platform/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

const memoryBackend = "memory"

type cacheEntry struct {
	insertedAt time.Time
}

// MemoryCache is an in-process Cache. Invalidate clears every entry.
// Concurrent misses for the same key share a single Source call.
type MemoryCache struct {
	source  Source
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	entries    map[Key]cacheEntry
	generation uint64

	group singleflight.Group
}

type MemoryCacheOptions struct {
	// TTL bounds how long a positive decision is memoized. Zero means until invalidated.
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewMemoryCache(source Source, opts MemoryCacheOptions) *MemoryCache {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &MemoryCache{
		source:  source,
		ttl:     opts.TTL,
		now:     time.Now,
		log:     log,
		metrics: opts.Metrics,
		entries: make(map[Key]cacheEntry),
	}
}

func (c *MemoryCache) HasPermission(ctx context.Context, k Key) (bool, error) {
	if c.lookup(k) {
		c.metrics.CacheLookup(memoryBackend, metrics.CacheHit)
		return true, nil
	}
	c.metrics.CacheLookup(memoryBackend, metrics.CacheMiss)

	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	// The generation is part of the flight key so a lookup started after an
	// Invalidate never joins one started before it.
	flight := strconv.FormatUint(gen, 10) + "|" + k.String()
	ch := c.group.DoChan(flight, func() (any, error) {
		ok, err := c.source.HasPermission(ctx, k)
		if err != nil {
			return false, sourceErr(k, err)
		}
		if ok {
			c.store(k, gen)
		}
		return ok, nil
	})

	// Callers that join a flight still honour their own deadline.
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		allowed := res.Val.(bool)
		c.log.DebugContext(ctx, "permission cache miss", "key", k.String(), "allowed", allowed, "shared", res.Shared)
		return allowed, nil
	case <-ctx.Done():
		return false, sourceErr(k, ctx.Err())
	}
}

// Invalidate drops all memoized decisions, not only those of userID/tenantID.
func (c *MemoryCache) Invalidate(ctx context.Context, userID, tenantID int64) error {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[Key]cacheEntry)
	c.generation++
	c.mu.Unlock()
	c.log.InfoContext(ctx, "permission cache invalidated", "user_id", userID, "tenant_id", tenantID, "dropped", n)
	return nil
}

// Len reports the number of memoized decisions.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) lookup(k Key) bool {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if c.ttl > 0 && c.now().Sub(e.insertedAt) > c.ttl {
		c.mu.Lock()
		if cur, still := c.entries[k]; still && cur == e {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return false
	}
	return true
}

// store skips the write if an Invalidate happened since gen was read.
func (c *MemoryCache) store(k Key, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.entries[k] = cacheEntry{insertedAt: c.now()}
}
