package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter enforces a fixed-window request quota per caller. Authenticated
// requests are keyed by user ID so callers behind one NAT do not share a
// bucket; anonymous ones fall back to the remote address.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	sweepAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		sweepAt: time.Now().Add(window),
	}
}

// Allow records one request for key and reports whether it is within quota.
// Expired buckets are swept inline at most once per window, so the limiter
// needs no background goroutine.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.sweepAt) {
		for k, b := range rl.buckets {
			if now.After(b.resetAt) {
				delete(rl.buckets, k)
			}
		}
		rl.sweepAt = now.Add(rl.window)
	}

	b, ok := rl.buckets[key]
	if !ok || now.After(b.resetAt) {
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	b.count++
	return b.count <= rl.limit
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(callerKey(r)) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerKey prefers the authenticated identity over the network address.
func callerKey(r *http.Request) string {
	if id := GetIdentity(r.Context()); id.UserID != uuid.Nil {
		return "user:" + id.UserID.String()
	}
	return "ip:" + r.RemoteAddr
}
