// Package ratelimit implements per-client admission control.
//
// Every client identity owns a token bucket (capacity 10, refilled
// continuously at 10 tokens per minute by default). TryAdmit consumes one
// token and never blocks. MemoryRegistry keeps buckets in process;
// RedisBucket keeps them in Redis so several replicas share one budget.
package ratelimit
