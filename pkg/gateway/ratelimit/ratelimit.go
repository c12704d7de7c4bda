// Package ratelimit throttles API requests per principal. It exists to keep
// anonymous and misbehaving clients from starving the generative backend;
// limits are in-memory and single-process.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

type Config struct {
	// RPS and Burst shape the per-principal token bucket. Either being zero
	// disables throttling.
	RPS   float64
	Burst int

	// Operational bounds for the in-memory map.
	MaxEntries int
	EntryTTL   time.Duration
}

// Limiter tracks one token bucket per principal, garbage collecting entries
// that go quiet.
type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*bucket
}

type bucket struct {
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*bucket),
	}
}

// Allow consumes one token for the principal. When denied, retryAfter is the
// whole number of seconds until a token becomes available.
func (l *Limiter) Allow(principal string, now time.Time) (allowed bool, retryAfter int) {
	if l == nil || l.cfg.RPS <= 0 || l.cfg.Burst <= 0 {
		return true, 0
	}
	if principal == "" {
		principal = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[principal]
	if !ok {
		if len(l.m) >= l.cfg.MaxEntries {
			l.gcLocked(now)
			// If still too big, drop one arbitrary entry (bounded memory over
			// perfect fairness).
			if len(l.m) >= l.cfg.MaxEntries {
				for k := range l.m {
					delete(l.m, k)
					break
				}
			}
		}
		b = &bucket{tokens: float64(l.cfg.Burst), last: now}
		l.m[principal] = b
	}
	b.lastSeen = now

	capacity := float64(l.cfg.Burst)
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(capacity, b.tokens+elapsed*l.cfg.RPS)
		b.last = now
	}

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - b.tokens
	retryAfter = int(math.Ceil(needed / l.cfg.RPS))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

func (l *Limiter) gcLocked(now time.Time) {
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > l.cfg.EntryTTL {
			delete(l.m, k)
		}
	}
}
