package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryRegistry holds one limiter per client identity. Limiters are created
// on first sight and never evicted.
type MemoryRegistry struct {
	policy  Policy
	limit   rate.Limit
	now     func() time.Time
	buckets sync.Map // client id -> *rate.Limiter
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry(policy Policy, opts ...Option) *MemoryRegistry {
	o := buildOptions(opts)
	return &MemoryRegistry{
		policy: policy,
		limit:  rate.Every(policy.interval()),
		now:    o.now,
	}
}

// TryAdmit consumes one token from the client's bucket.
func (r *MemoryRegistry) TryAdmit(_ context.Context, clientID string) (bool, error) {
	return r.bucket(clientID).AllowN(r.now(), 1), nil
}

// Tokens reports the tokens currently available to a client.
func (r *MemoryRegistry) Tokens(clientID string) float64 {
	return r.bucket(clientID).TokensAt(r.now())
}

// Len returns the number of tracked clients.
func (r *MemoryRegistry) Len() int {
	n := 0
	r.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *MemoryRegistry) bucket(clientID string) *rate.Limiter {
	if v, ok := r.buckets.Load(clientID); ok {
		return v.(*rate.Limiter)
	}
	v, _ := r.buckets.LoadOrStore(clientID, rate.NewLimiter(r.limit, r.policy.Capacity))
	return v.(*rate.Limiter)
}
