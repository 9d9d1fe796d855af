package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// takeToken refills the bucket for the time elapsed since the last call and
// consumes one token if available. It runs atomically inside Redis.
//
// KEYS[1] bucket key
// ARGV[1] capacity, ARGV[2] refill tokens, ARGV[3] refill period (ms),
// ARGV[4] now (ms), ARGV[5] key ttl (ms)
var takeToken = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local period = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

if now > ts then
  tokens = math.min(capacity, tokens + (now - ts) * refill / period)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ttl)
return allowed
`)

// RedisBucket keeps token buckets in Redis hashes so that every replica
// draws from the same per-client budget. Idle buckets expire once they
// would have refilled completely.
type RedisBucket struct {
	logger *zap.Logger
	client redis.UniversalClient
	policy Policy
	prefix string
	now    func() time.Time
}

// NewRedisBucket creates a Redis-backed admitter.
func NewRedisBucket(logger *zap.Logger, client redis.UniversalClient, policy Policy, prefix string, opts ...Option) *RedisBucket {
	o := buildOptions(opts)
	return &RedisBucket{
		logger: logger,
		client: client,
		policy: policy,
		prefix: prefix,
		now:    o.now,
	}
}

// TryAdmit consumes one token from the client's bucket.
func (b *RedisBucket) TryAdmit(ctx context.Context, clientID string) (bool, error) {
	ttl := b.policy.fillTime() + time.Second

	allowed, err := takeToken.Run(ctx, b.client, []string{b.prefix + clientID},
		b.policy.Capacity,
		b.policy.RefillTokens,
		b.policy.RefillPeriod.Milliseconds(),
		b.now().UnixMilli(),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to take token for %s: %w", clientID, err)
	}

	return allowed == 1, nil
}

// Ping checks the connection to Redis.
func (b *RedisBucket) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (b *RedisBucket) Close() error {
	b.logger.Debug("closing redis admission store")
	return b.client.Close()
}
