package dispatch

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: Initial * 2^(attempt-1), plus a random
// fraction in [0, Jitter) of that, capped at Max.
//
// Jitter must be below 1 so that uncapped delays strictly increase: the
// largest jittered delay for attempt n is still shorter than the smallest
// for attempt n+1.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// Delay returns the delay to wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		if d >= b.Max/2 {
			d = b.Max
			break
		}
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 && d < b.Max {
		d += time.Duration(float64(d) * b.Jitter * rand.Float64())
		if d > b.Max {
			d = b.Max
		}
	}
	return d
}

// RetryPolicy bounds the retrying of one resource.
type RetryPolicy struct {
	// MaxAttempts is the number of attempts, the first one included, before an
	// error becomes terminal.
	MaxAttempts int
	Backoff     Backoff
}

// DefaultRetryPolicy matches the operator defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff: Backoff{
			Initial: time.Second,
			Max:     5 * time.Minute,
			Jitter:  0.1,
		},
	}
}

// Validate checks the policy for configuration errors.
func (p RetryPolicy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("maxAttempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.Backoff.Initial <= 0 {
		errs = append(errs, fmt.Errorf("initial backoff must be positive, got %s", p.Backoff.Initial))
	}
	if p.Backoff.Max < p.Backoff.Initial {
		errs = append(errs, fmt.Errorf("max backoff %s is below initial backoff %s", p.Backoff.Max, p.Backoff.Initial))
	}
	if p.Backoff.Jitter < 0 || p.Backoff.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("jitter must be in [0, 1), got %v", p.Backoff.Jitter))
	}
	return errors.Join(errs...)
}
