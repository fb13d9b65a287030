package scheduler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/offlinequeue/pkg/observability/logger"
)

const (
	defaultRedisPrefix           = "offlinequeue:lock"
	defaultRedisOperationTimeout = 3 * time.Second
)

// ownedScript renews (ARGV[2] > 0, milliseconds) or deletes (ARGV[2] == 0)
// KEYS[1] only while it still holds token ARGV[1]. It returns 0 otherwise.
var ownedScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
if ARGV[2] == "0" then
  return redis.call("DEL", KEYS[1])
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])
`)

// RedisLockProviderConfig configures leases stored as Redis keys.
type RedisLockProviderConfig struct {
	URL              string
	Prefix           string
	OperationTimeout time.Duration
}

func (c *RedisLockProviderConfig) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = defaultRedisPrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultRedisOperationTimeout
	}
}

// RedisLockProvider stores each lease as <prefix>:<key> = token with a PX
// expiry. Sweeps sharing a redis store can point it at the same server.
type RedisLockProvider struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	log     logger.Logger
}

// NewRedisLockProvider connects to cfg.URL and verifies it with a PING.
func NewRedisLockProvider(cfg RedisLockProviderConfig, log logger.Logger) (*RedisLockProvider, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, schedulerError(ErrInvalidArgument, "redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(schedulerError(ErrValidation, "invalid redis url"), err)
	}

	p := newRedisLockProvider(redis.NewClient(opts), cfg, log)
	if err := p.HealthCheck(context.Background()); err != nil {
		_ = p.Close()
		return nil, err
	}
	p.log.Info("redis lock provider connected", "prefix", p.prefix)
	return p, nil
}

func newRedisLockProvider(client redis.UniversalClient, cfg RedisLockProviderConfig, log logger.Logger) *RedisLockProvider {
	if log == nil {
		log = logger.NewNopLogger()
	}
	cfg.normalize()
	return &RedisLockProvider{
		client:  client,
		prefix:  strings.TrimRight(cfg.Prefix, ":") + ":",
		timeout: cfg.OperationTimeout,
		log:     log,
	}
}

// Acquire stores a fresh token under key unless the key already exists.
func (p *RedisLockProvider) Acquire(ctx context.Context, key string, ttl time.Duration) (*LockLease, bool, error) {
	lease, err := newLease(key, ttl)
	if err != nil {
		return nil, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.client.SetArgs(ctx, p.prefix+lease.Key, lease.Token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Join(schedulerError(ErrRetryable, "redis acquire failed"), err)
	}
	p.log.Debug("lease acquired", "key", lease.Key, "ttl", ttl)
	return lease, true, nil
}

// Renew pushes the expiry of a still-held lease to now+ttl.
func (p *RedisLockProvider) Renew(ctx context.Context, lease *LockLease, ttl time.Duration) error {
	if ttl <= 0 {
		return schedulerError(ErrInvalidArgument, "ttl must be > 0")
	}
	if err := p.runOwned(ctx, "renew", lease, ttl.Milliseconds()); err != nil {
		return err
	}
	lease.ExpireAt = time.Now().UTC().Add(ttl)
	return nil
}

// Release deletes a still-held lease.
func (p *RedisLockProvider) Release(ctx context.Context, lease *LockLease) error {
	return p.runOwned(ctx, "release", lease, 0)
}

func (p *RedisLockProvider) runOwned(ctx context.Context, op string, lease *LockLease, ttlMillis int64) error {
	key, token, err := heldLease(lease)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	n, err := ownedScript.Run(ctx, p.client, []string{p.prefix + key}, token, strconv.FormatInt(ttlMillis, 10)).Int64()
	if err != nil {
		return errors.Join(schedulerError(ErrRetryable, "redis "+op+" failed"), err)
	}
	if n == 0 {
		return lostLease(op)
	}
	return nil
}

// HealthCheck pings Redis.
func (p *RedisLockProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return errors.Join(schedulerError(ErrRetryable, "redis ping failed"), err)
	}
	return nil
}

// Close closes the client.
func (p *RedisLockProvider) Close() error {
	return p.client.Close()
}
