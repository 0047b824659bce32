package resilience

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff computes the wait before a retry.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the delay.
	Max time.Duration
	// Factor is the multiplier for exponential backoff.
	Factor float64
	// Jitter adds randomness to the delay (0.0 to 1.0).
	Jitter float64
}

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of subscriptions, including the first.
	MaxAttempts int
	Backoff     Backoff
	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
	// OnRetry is called before each retry is scheduled.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns sensible defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: Backoff{
			Initial: 100 * time.Millisecond,
			Max:     10 * time.Second,
			Factor:  2.0,
			Jitter:  0.1,
		},
		RetryIf: DefaultRetryIf,
	}
}

// DefaultRetryIf retries all errors except context cancellation.
func DefaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Normalize fills zero fields with defaults. Jitter and OnRetry are left as
// they are.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff.Initial < 0 {
		p.Backoff.Initial = 0
	}
	if p.Backoff.Max <= 0 {
		p.Backoff.Max = 10 * time.Second
	}
	if p.Backoff.Factor <= 0 {
		p.Backoff.Factor = 2.0
	}
	if p.RetryIf == nil {
		p.RetryIf = DefaultRetryIf
	}
	return p
}

// ShouldRetry reports whether a failure of the given attempt (1-based) may
// be retried.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return p.RetryIf == nil || p.RetryIf(err)
}

// Delay returns the wait after the given failed attempt (1-based):
// Initial * Factor^(attempt-1), jittered by +/- Jitter and capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor <= 0 {
		factor = 1
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = time.Duration(math.MaxInt64)
	}

	eb := &backoff.ExponentialBackOff{
		InitialInterval:     b.Initial,
		RandomizationFactor: b.Jitter,
		Multiplier:          factor,
		MaxInterval:         maxDelay,
	}
	eb.Reset()
	var d time.Duration
	for range attempt {
		d = eb.NextBackOff()
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
