package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/config"
)

// Admitter decides whether a client may start another execution.
type Admitter interface {
	TryAdmit(ctx context.Context, clientID string) (bool, error)
}

// Policy is the shape of every client's token bucket.
type Policy struct {
	Capacity     int
	RefillTokens int
	RefillPeriod time.Duration
}

// DefaultPolicy allows bursts of 10 and refills 10 tokens per minute.
func DefaultPolicy() Policy {
	return Policy{Capacity: 10, RefillTokens: 10, RefillPeriod: time.Minute}
}

// interval is the time it takes to accrue one token.
func (p Policy) interval() time.Duration {
	return p.RefillPeriod / time.Duration(p.RefillTokens)
}

// fillTime is the time an empty bucket needs to become full again.
func (p Policy) fillTime() time.Duration {
	return p.interval() * time.Duration(p.Capacity)
}

// Option configures an Admitter implementation
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AllowAll admits every request. It is used when rate limiting is disabled.
type AllowAll struct{}

func (AllowAll) TryAdmit(context.Context, string) (bool, error) {
	return true, nil
}

// NewFromConfig builds the admitter selected by ratelimit.store.
func NewFromConfig(logger *zap.Logger, cfg *config.Config) Admitter {
	if !cfg.RateLimit.Enabled {
		logger.Warn("rate limiting disabled")
		return AllowAll{}
	}

	policy := Policy{
		Capacity:     cfg.RateLimit.Capacity,
		RefillTokens: cfg.RateLimit.RefillTokens,
		RefillPeriod: cfg.RefillPeriod(),
	}

	if cfg.RateLimit.Store == "redis" {
		logger.Info("using redis admission store",
			zap.String("addr", cfg.RateLimit.RedisAddr),
			zap.Int("capacity", policy.Capacity))
		client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		return NewRedisBucket(logger, client, policy, cfg.RateLimit.RedisKeyPrefix)
	}

	logger.Info("using in-memory admission store", zap.Int("capacity", policy.Capacity))
	return NewMemoryRegistry(policy)
}
