// Package ratelimiter throttles HTTP clients with token buckets.
//
// RateLimiter is a single bucket wrapping golang.org/x/time/rate. Keyed
// holds one bucket per client key (the client address), created on first
// use and dropped after a period of inactivity.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimited stands in for rate.Inf, which has edge cases with bursts.
const unlimited = 1_000_000_000

// RateLimiter is one token bucket.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a bucket refilled at requestsPerSecond holding at most burst
// tokens. requestsPerSecond = 0 disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// AllowAt is Allow with an explicit clock reading.
func (r *RateLimiter) AllowAt(now time.Time) bool {
	return r.limiter.AllowN(now, 1)
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently available. Monitoring only.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// DefaultIdleTTL is how long an unused client bucket is kept.
const DefaultIdleTTL = 10 * time.Minute

// pruneEvery is the number of Allow calls between idle sweeps.
const pruneEvery = 1024

type bucket struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// Keyed limits each key independently.
//
// Thread safety:
// All methods are safe for concurrent use.
type Keyed struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int

	requestsPerSecond uint
	burst             uint
	idleTTL           time.Duration
	now               func() time.Time
}

// NewKeyed creates a per-key limiter. Every key gets its own bucket with
// the given rate and burst.
func NewKeyed(requestsPerSecond, burst uint) *Keyed {
	return &Keyed{
		buckets:           make(map[string]*bucket),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		idleTTL:           DefaultIdleTTL,
		now:               time.Now,
	}
}

// Enabled reports whether the limiter ever rejects anything.
func (k *Keyed) Enabled() bool {
	return k.requestsPerSecond > 0
}

// Allow consumes a token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	if !k.Enabled() {
		return true
	}

	k.mu.Lock()
	now := k.now()

	k.calls++
	if k.calls%pruneEvery == 0 {
		k.pruneLocked(now)
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: New(k.requestsPerSecond, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	k.mu.Unlock()

	return b.limiter.AllowAt(now)
}

// Prune drops buckets idle for longer than the idle TTL.
func (k *Keyed) Prune() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pruneLocked(k.now())
}

func (k *Keyed) pruneLocked(now time.Time) {
	for key, b := range k.buckets {
		if now.Sub(b.lastSeen) > k.idleTTL {
			delete(k.buckets, key)
		}
	}
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
