package httpapi

import (
	"sync"
	"testing"
	"time"
)

type limiterClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *limiterClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *limiterClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCategoryFor(t *testing.T) {
	cases := map[string]string{
		"/api/auth/login":       "auth",
		"/api/auth/refresh":     "auth",
		"/api/ai/insights":      "ai",
		"/api/payroll/run":      "heavy",
		"/api/reports/generate": "heavy",
		"/api/employees":        "default",
		"/api/payroll":          "default",
	}
	for path, want := range cases {
		if got := CategoryFor(path); got != want {
			t.Fatalf("CategoryFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSlidingWindowRefusesOverCeiling(t *testing.T) {
	clock := &limiterClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(map[string]int{"default": 2}, WithLimiterClock(clock.Now))

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.Allow("client-1", "/api/employees"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	ok, retry := limiter.Allow("client-1", "/api/employees")
	if ok {
		t.Fatal("third request inside the window should be refused")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry-after %v", retry)
	}
}

func TestSlidingWindowFreesSlotsAsTheyAge(t *testing.T) {
	clock := &limiterClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(map[string]int{"default": 2}, WithLimiterClock(clock.Now))

	limiter.Allow("client-1", "/api/employees")
	clock.Advance(30 * time.Second)
	limiter.Allow("client-1", "/api/employees")

	if ok, _ := limiter.Allow("client-1", "/api/employees"); ok {
		t.Fatal("window is full")
	}

	// The first admission leaves the trailing window after 60s; only then
	// does a slot open. No burst credit accumulates.
	clock.Advance(31 * time.Second)
	if ok, _ := limiter.Allow("client-1", "/api/employees"); !ok {
		t.Fatal("slot should free once the oldest admission ages out")
	}
	if ok, _ := limiter.Allow("client-1", "/api/employees"); ok {
		t.Fatal("only one slot should have freed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	clock := &limiterClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(map[string]int{"default": 1}, WithLimiterClock(clock.Now))

	if ok, _ := limiter.Allow("client-1", "/api/employees"); !ok {
		t.Fatal("first client should pass")
	}
	if ok, _ := limiter.Allow("client-2", "/api/employees"); !ok {
		t.Fatal("second client must not share the first client's window")
	}
	if ok, _ := limiter.Allow("client-1", "/api/payroll"); !ok {
		t.Fatal("a different path must not share the window either")
	}
}

func TestCategoryCeilingApplies(t *testing.T) {
	clock := &limiterClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(map[string]int{"default": 60, "auth": 1}, WithLimiterClock(clock.Now))

	if ok, _ := limiter.Allow("client-1", "/api/auth/login"); !ok {
		t.Fatal("first login should pass")
	}
	if ok, _ := limiter.Allow("client-1", "/api/auth/login"); ok {
		t.Fatal("auth ceiling should refuse the second login")
	}
	if ok, _ := limiter.Allow("client-1", "/api/employees"); !ok {
		t.Fatal("default category must be unaffected by the auth ceiling")
	}
}

func TestSweepDropsIdleWindows(t *testing.T) {
	clock := &limiterClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(map[string]int{"default": 10}, WithLimiterClock(clock.Now))

	limiter.Allow("client-1", "/api/employees")
	limiter.Allow("client-2", "/api/employees")
	clock.Advance(2 * time.Minute)
	limiter.Allow("client-3", "/api/employees")

	if removed := limiter.Sweep(clock.Now()); removed != 2 {
		t.Fatalf("expected 2 idle windows swept, got %d", removed)
	}
	// The surviving window still enforces its history.
	if ok, _ := limiter.Allow("client-3", "/api/employees"); !ok {
		t.Fatal("active window must survive the sweep")
	}
}
