// Package ratelimit throttles requests per key (the client IP for the login
// and verify forms) with token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the login and verify forms.
const (
	DefaultPerMinute = 20
	DefaultBurst     = 10
	DefaultIdleTTL   = 30 * time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key. Buckets idle longer than IdleTTL
// are removed by Sweep.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*entry

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// New returns a limiter refilling perMinute tokens per minute up to burst.
// Non-positive values fall back to the defaults.
func New(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		idleTTL: DefaultIdleTTL,
		buckets: make(map[string]*entry),
		Now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	now := l.Now()

	l.mu.Lock()
	e, ok := l.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// RetryAfter is the wait before key earns its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	now := l.Now()

	l.mu.Lock()
	e, ok := l.buckets[key]
	l.mu.Unlock()
	if !ok {
		return 0
	}

	r := e.limiter.ReserveN(now, 1)
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

// Sweep drops buckets idle longer than the idle TTL and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.Now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Middleware rejects requests whose key is over its rate. Rejected requests
// get a Retry-After header and are passed to onLimited, which writes the
// response (and typically records an audit event).
func (l *Limiter) Middleware(key func(*http.Request) string, onLimited http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if l.Allow(k) {
				next.ServeHTTP(w, r)
				return
			}
			secs := int(l.RetryAfter(k).Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			onLimited.ServeHTTP(w, r)
		})
	}
}
