package dispatch

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimit configures a RateLimiter. A zero QPS disables limiting.
type RateLimit struct {
	QPS   float64
	Burst int
}

// RateLimiter caps the global rate of reconciliation starts. One limiter is
// shared by every dispatcher of a manager.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter. A nil *RateLimiter never waits.
func NewRateLimiter(cfg RateLimit) *RateLimiter {
	if cfg.QPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.QPS), burst)}
}

// Wait blocks until a reconciliation may start or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
