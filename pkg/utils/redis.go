package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the shared Redis used by the permission cache.
// Zero timeouts and pool sizes take go-redis friendly defaults below.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

func (c RedisConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     durationOr(c.DialTimeout, 3*time.Second),
		ReadTimeout:     durationOr(c.ReadTimeout, time.Second),
		WriteTimeout:    durationOr(c.WriteTimeout, time.Second),
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 20
	}
	if opts.MinIdleConns < 0 {
		opts.MinIdleConns = 0
	}
	return opts
}

// OpenRedis builds a client for cfg and verifies it answers PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}

	rdb := redis.NewClient(cfg.options())
	if err := PingRedis(ctx, rdb, durationOr(cfg.PingTimeout, 2*time.Second)); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// PingRedis bounds a PING by timeout. It backs /readyz.
func PingRedis(ctx context.Context, rdb redis.Cmdable, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
