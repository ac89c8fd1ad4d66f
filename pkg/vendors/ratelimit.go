package vendors

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-vendor-host politeness. One process-global
// instance is shared by all fetchers; Wait blocks until the host's token
// bucket allows another request.
type RateLimiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing one request per minDelay per
// host.
func NewRateLimiter(minDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		minDelay: minDelay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the host may be contacted again, or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context, host string) error {
	r.mu.Lock()
	lim, ok := r.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(r.minDelay), 1)
		r.limiters[host] = lim
	}
	r.mu.Unlock()
	return lim.Wait(ctx)
}

// Backoff pushes the host's next allowance out by the vendor's Retry-After.
func (r *RateLimiter) Backoff(host string, d time.Duration) {
	r.mu.Lock()
	lim, ok := r.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(r.minDelay), 1)
		r.limiters[host] = lim
	}
	r.mu.Unlock()
	lim.ReserveN(time.Now().Add(d), 1)
}
