// Package ratelimit implements a per-key token-bucket limiter governing
// outbound send throughput. It is injected into the delivery path as a
// capability object rather than consulted as a module-level singleton, so a
// shared external limiter can replace it without changing call sites.
//
// Features:
//   - Per-key token buckets using golang.org/x/time/rate (lazy refill from
//     wall-clock time, never ticked by a timer)
//   - Blocking Acquire with a bounded wait budget and a descriptive error
//   - Best-effort eviction of idle buckets to bound memory
//
// Notes:
//   - This limiter is process-local. Each deployed instance enforces its own
//     ceiling rather than a shared global one; for horizontally scaled
//     deployments prefer a distributed limiter.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults match the channel's per-sender throughput ceiling of 80 msg/s.
const (
	DefaultCapacity  = 80
	DefaultRefillPerSec = 80.0
	DefaultMaxWait   = 5 * time.Second
	DefaultIdleTTL   = 5 * time.Minute
)

// bucket holds a single token bucket and the last time it was touched,
// used to evict idle entries.
type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-key token-bucket rate limiter.
//
// Buckets are created on demand and stored in an internal map guarded by a
// mutex. Idle buckets are evicted lazily on later accesses once they have not
// been touched within the cleanup window. This type is safe for concurrent use.
type Limiter struct {
	capacity int
	refill   rate.Limit
	maxWait  time.Duration
	idleTTL  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithMaxWait overrides the blocking-acquire wait budget.
func WithMaxWait(d time.Duration) Option { return func(l *Limiter) { l.maxWait = d } }

// WithIdleTTL overrides the idle-bucket cleanup window.
func WithIdleTTL(d time.Duration) Option { return func(l *Limiter) { l.idleTTL = d } }

// New constructs a Limiter with the given bucket capacity and refill rate in
// tokens per second. Buckets start full. Non-positive capacity is coerced to 1.
func New(capacity int, refillPerSec float64, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	l := &Limiter{
		capacity: capacity,
		refill:   rate.Limit(refillPerSec),
		maxWait:  DefaultMaxWait,
		idleTTL:  DefaultIdleTTL,
		buckets:  make(map[string]*bucket),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// getBucket returns (and touches) the bucket for key, creating it if absent.
// Idle entries past the cleanup window are evicted before the lookup so a
// stale bucket is dropped even when it is the one being fetched.
func (l *Limiter) getBucket(key string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idleTTL {
			delete(l.buckets, k)
		}
	}

	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}

	lim := rate.NewLimiter(l.refill, l.capacity)
	l.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// TryAcquire is non-blocking: it consumes one token and returns true when at
// least one is available, and returns false immediately otherwise.
func (l *Limiter) TryAcquire(key string) bool {
	return l.getBucket(key).Allow()
}

// Acquire blocks until a token for key is available or the wait budget is
// exhausted. On timeout it returns a descriptive error naming the key and
// the elapsed wait; on context cancellation it returns the context error.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	lim := l.getBucket(key)

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	start := time.Now()
	if err := lim.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rate limit: no token for key %q after %dms (budget %dms)",
			key, time.Since(start).Milliseconds(), l.maxWait.Milliseconds())
	}
	return nil
}

// Available reports the number of tokens currently available for key. It
// never exceeds the bucket capacity regardless of elapsed time.
func (l *Limiter) Available(key string) float64 {
	tokens := l.getBucket(key).Tokens()
	if tokens < 0 {
		return 0
	}
	if tokens > float64(l.capacity) {
		return float64(l.capacity)
	}
	return tokens
}

// Len reports the number of live buckets. Exposed for tests and metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
