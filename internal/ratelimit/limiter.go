// Package ratelimit bounds outbound source traffic by request rate and by
// the number of concurrently open requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-enrich/internal/config"
)

// Config configures a Limiter.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
	MaxConcurrent     int
}

// FromConfig converts the configured rate limit section.
func FromConfig(c config.RateLimitConfig) Config {
	return Config{
		RequestsPerWindow: c.RequestsPerWindow,
		Window:            time.Duration(c.WindowSecs) * time.Second,
		Burst:             c.Burst,
		MaxConcurrent:     c.MaxConcurrent,
	}
}

// Limiter admits at most RequestsPerWindow requests per Window (with Burst
// headroom) and at most MaxConcurrent requests between Acquire and Release.
// The rate halves on OnRateLimit and recovers on OnSuccess.
type Limiter struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu          sync.Mutex
	initialRate rate.Limit
	currentRate rate.Limit
	inFlight    int
}

// New creates a Limiter. Non-positive fields fall back to 100 requests per
// minute, a burst of 10 and 10 concurrent requests.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}

	r := rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds())
	return &Limiter{
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:     rate.NewLimiter(r, cfg.Burst),
		initialRate: r,
		currentRate: r,
	}
}

// Acquire blocks until a concurrency slot and a rate token are available.
// Every successful Acquire must be paired with Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return eris.Wrap(err, "ratelimit: acquire slot")
	}
	if err := l.limiter.Wait(ctx); err != nil {
		l.sem.Release(1)
		return eris.Wrap(err, "ratelimit: wait for token")
	}
	l.mu.Lock()
	l.inFlight++
	l.mu.Unlock()
	return nil
}

// Wait takes one more rate token for a request made under a slot that is
// already held, such as a retry. It does not take a concurrency slot.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "ratelimit: wait for token")
	}
	return nil
}

// Release frees the slot taken by Acquire.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
	l.sem.Release(1)
}

// InFlight returns the number of acquired, unreleased slots.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Rate returns the current request rate in requests per second.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.currentRate)
}

// OnSuccess raises the rate by 20%, up to the configured rate.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentRate * 1.2
	if next > l.initialRate {
		next = l.initialRate
	}
	l.currentRate = next
	l.limiter.SetLimit(next)
}

// OnRateLimit halves the rate after a 429, down to a quarter of the configured rate.
func (l *Limiter) OnRateLimit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentRate * 0.5
	if floor := l.initialRate / 4; next < floor {
		next = floor
	}
	l.currentRate = next
	l.limiter.SetLimit(next)
	zap.L().Warn("ratelimit: reducing rate after 429",
		zap.Float64("new_rate", float64(next)),
	)
}
