package httpapi

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"worktracker.org/internal/token"
)

const rateWindow = time.Minute

// CategoryFor buckets a path into a rate-limit category. Authentication and
// expensive endpoints get tighter ceilings than ordinary reads.
func CategoryFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/auth/"):
		return "auth"
	case strings.HasPrefix(path, "/api/ai/"):
		return "ai"
	case path == "/api/payroll/run", path == "/api/reports/generate":
		return "heavy"
	default:
		return "default"
	}
}

// RateLimiter enforces per-minute ceilings with a true sliding window: each
// (client, path) pair keeps the timestamps of its admitted requests and a
// request passes only if fewer than the ceiling landed in the trailing
// window. No burst credit accumulates.
type RateLimiter struct {
	limits map[string]int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string][]time.Time
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithWindow overrides the trailing window length.
func WithWindow(d time.Duration) LimiterOption {
	return func(l *RateLimiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithLimiterClock overrides the time source (useful for tests).
func WithLimiterClock(fn func() time.Time) LimiterOption {
	return func(l *RateLimiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewRateLimiter builds a limiter from per-category ceilings. Categories
// without an entry fall back to "default".
func NewRateLimiter(limits map[string]int, opts ...LimiterOption) *RateLimiter {
	l := &RateLimiter{
		limits:  make(map[string]int, len(limits)),
		window:  rateWindow,
		now:     time.Now,
		windows: make(map[string][]time.Time),
	}
	for category, limit := range limits {
		l.limits[category] = limit
	}
	if _, ok := l.limits["default"]; !ok {
		l.limits["default"] = 60
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more request from key on path fits the window.
// When refused, the second return value is how long until a slot frees up.
func (l *RateLimiter) Allow(key, path string) (bool, time.Duration) {
	limit, ok := l.limits[CategoryFor(path)]
	if !ok {
		limit = l.limits["default"]
	}

	now := l.now()
	cutoff := now.Add(-l.window)
	entry := key + " " + path

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.windows[entry]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.windows[entry] = kept
		return false, kept[0].Sub(cutoff)
	}
	l.windows[entry] = append(kept, now)
	return true, 0
}

// Sweep drops windows with no activity inside the trailing window and
// returns how many were removed. Run periodically to bound memory.
func (l *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, stamps := range l.windows {
		idle := true
		for _, ts := range stamps {
			if ts.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Paths exempt from rate limiting so probes and scrapes never get throttled.
var infraPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// withRateLimit is the last enforcement stage. A request that reaches the
// far side of this middleware has passed every check, so the single granted
// audit record for guarded traffic is emitted here.
func (a *API) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if infraPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		if identity, ok := token.IdentityFromContext(r.Context()); ok {
			key = identity.Subject
		}

		allowed, retryAfter := a.limiter.Allow(key, r.URL.Path)
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retryAfter.Seconds()))))
			a.deny(w, r, stageRateLimit, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if !a.isPublicPath(r.URL.Path) {
			a.grant(r)
		}
		next.ServeHTTP(w, r)
	})
}
