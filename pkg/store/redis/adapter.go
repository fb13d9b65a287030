// Package redis stores the queue in Redis string keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

const (
	dialTimeout   = 5 * time.Second
	healthTimeout = 2 * time.Second
)

// Config takes a redis:// or rediss:// URL.
type Config struct {
	URL              string
	MaxConns         int
	OperationTimeout time.Duration
}

func (c Config) options() (*redis.Options, error) {
	if strings.TrimSpace(c.URL) == "" {
		return nil, errors.New("redis URL is required")
	}
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = dialTimeout
	if c.MaxConns > 0 {
		opts.PoolSize = c.MaxConns
	}
	if c.OperationTimeout > 0 {
		opts.ReadTimeout, opts.WriteTimeout = c.OperationTimeout, c.OperationTimeout
	}
	return opts, nil
}

// RedisAdapter is a store.KV on plain Redis strings written without expiry.
type RedisAdapter struct {
	client redis.UniversalClient
	log    logger.Logger
}

// NewRedisAdapter connects and pings the server.
func NewRedisAdapter(cfg Config, log logger.Logger) (*RedisAdapter, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	a := newAdapterWithClient(redis.NewClient(opts), log)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := a.client.Ping(ctx).Err(); err != nil {
		_ = a.client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	a.log.Info("redis store connected", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)
	return a, nil
}

func newAdapterWithClient(client redis.UniversalClient, log logger.Logger) *RedisAdapter {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisAdapter{client: client, log: log}
}

// Get maps redis.Nil to found=false.
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := a.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte) error {
	if err := a.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (a *RedisAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := a.client.Ping(ctx).Err(); err != nil {
		a.log.Warn("redis store unhealthy", "error", err)
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

func (a *RedisAdapter) Close() error {
	return a.client.Close()
}
