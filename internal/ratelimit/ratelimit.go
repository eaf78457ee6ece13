package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type RateLimit interface {
	Allow(addr string) bool
}

type WindowData struct {
	count       int
	windowStart time.Time
}

type FixedWindowLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string]*WindowData
	mutex       sync.Mutex
	now         func() time.Time
}

func New(maxRequests int, interval time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      interval,
		requests:    make(map[string]*WindowData),
		now:         time.Now,
	}
}

func (rl *FixedWindowLimiter) Allow(addr string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	wd := rl.requests[addr]

	// no data, or the window for this address has passed
	if wd == nil || now.Sub(wd.windowStart) > rl.window {
		if rl.maxRequests == 0 {
			return false
		}

		wd = &WindowData{
			count:       1,
			windowStart: now,
		}
		rl.requests[addr] = wd

		return true
	}

	if wd.count >= rl.maxRequests {
		return false
	}
	wd.count++

	return true
}

// Prune drops windows that have expired. Returns the number removed.
func (rl *FixedWindowLimiter) Prune() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for addr, wd := range rl.requests {
		if now.Sub(wd.windowStart) > rl.window {
			delete(rl.requests, addr)
			removed++
		}
	}
	return removed
}

// Middleware rejects requests over the limit with 429. Requests are keyed by
// the client IP; run it after middleware.RealIP when behind a proxy.
func Middleware(rl RateLimit, retryAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
