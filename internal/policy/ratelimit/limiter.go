// Package ratelimit implements a per-client token bucket limiter for admission control.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an unused client bucket is kept before it is swept.
const idleTTL = 10 * time.Minute

// Limiter manages per-client rate limits.
type Limiter struct {
	mu        sync.Mutex
	limiters  map[string]*client
	rate      rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*client),
		rate:     r,
		burst:    burst,
		now:      time.Now,
	}
}

// Enabled reports whether the limiter can reject anything.
func (l *Limiter) Enabled() bool {
	return l.rate != rate.Inf
}

// Allow consumes a token for key and reports whether the request may proceed.
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleTTL {
		l.sweep(now)
	}
	c, ok := l.limiters[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) sweep(now time.Time) {
	for key, c := range l.limiters {
		if now.Sub(c.lastSeen) > idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}
