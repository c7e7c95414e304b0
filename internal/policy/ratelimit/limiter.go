// Package ratelimit paces requests against the catalog host with a token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// DelayObserver receives the time spent blocked on the limiter.
type DelayObserver interface {
	ObserveRateLimitDelay(d time.Duration)
}

// Limiter wraps a single token bucket. A nil *Limiter never blocks.
type Limiter struct {
	limiter  *rate.Limiter
	observer DelayObserver
}

// Config holds rate limiter configuration.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a Limiter, or returns nil when cfg.RPS is not positive.
// observer may be nil.
func New(cfg Config, observer DelayObserver) *Limiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), burst),
		observer: observer,
	}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Tokens available immediately are not a delay.
	if d := time.Since(start); d > time.Millisecond && l.observer != nil {
		l.observer.ObserveRateLimitDelay(d)
	}
	return nil
}
