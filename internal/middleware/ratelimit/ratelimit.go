// Package ratelimit implements a fixed-window request limiter keyed by
// client (user id or IP).
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

type Limiter struct {
	mu                sync.Mutex
	clients           map[string]*clientInfo
	requestsPerMinute int
	idleAfter         time.Duration
	now               func() time.Time
	hits              atomic.Int64
}

type clientInfo struct {
	windowStart time.Time
	lastRequest time.Time
	requests    int
}

type Config struct {
	RequestsPerMinute int
	// IdleAfter is how long a client may stay silent before CleanExpired
	// forgets it.
	IdleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, IdleAfter: 10 * time.Minute}
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = def.IdleAfter
	}
	return &Limiter{
		clients:           make(map[string]*clientInfo),
		requestsPerMinute: cfg.RequestsPerMinute,
		idleAfter:         cfg.IdleAfter,
		now:               time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a request for key and reports whether it is within the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok || now.Sub(c.windowStart) >= window {
		l.clients[key] = &clientInfo{windowStart: now, lastRequest: now, requests: 1}
		return true
	}
	c.requests++
	c.lastRequest = now
	if c.requests > l.requestsPerMinute {
		l.hits.Add(1)
		return false
	}
	return true
}

// CleanExpired forgets idle clients. It satisfies cache.Cleaner so the
// limiter can be swept by the same janitor as the caches.
func (l *Limiter) CleanExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleAfter)
	removed := 0
	for key, c := range l.clients {
		if c.lastRequest.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

type Metrics struct {
	Rejected    int64
	ClientCount int
}

func (l *Limiter) Metrics() Metrics {
	l.mu.Lock()
	n := len(l.clients)
	l.mu.Unlock()
	return Metrics{Rejected: l.hits.Load(), ClientCount: n}
}

// Middleware rejects requests over the limit. key picks the client
// identity; onLimit writes the rejection (a plain 429 when nil).
func (l *Limiter) Middleware(key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(key(r)) {
				w.Header().Set("Retry-After", "60")
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
