package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL     = 30 * time.Minute
	limiterSweepPeriod = 5 * time.Minute
)

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// throttle is a per-client-IP token bucket. Idle entries are swept on
// access instead of by a background goroutine.
type throttle struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newThrottle(rps float64, burst int) *throttle {
	if burst <= 0 {
		burst = 1
	}
	return &throttle{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) > limiterSweepPeriod {
		for k, e := range t.entries {
			if now.Sub(e.lastUse) > limiterIdleTTL {
				delete(t.entries, k)
			}
		}
		t.lastSweep = now
	}

	e, ok := t.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[key] = e
	}
	e.lastUse = now
	return e.limiter.AllowN(now, 1)
}

func (t *throttle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}
		if !t.allow(key) {
			writeJSON(w, http.StatusTooManyRequests, envelope{Reason: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
