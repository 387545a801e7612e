package auth

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginRateLimiter bounds authentication attempts per source IP. It is
// defense-in-depth around the account-keyed throttle in the service: the
// account lock bounds guessing per identity, this bounds it per address.
type LoginRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*ipLimiter
	rps        rate.Limit
	burst      int
	maxEntries int
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		limiters:   make(map[string]*ipLimiter),
		rps:        rate.Limit(float64(maxHits) / window.Seconds()),
		burst:      maxHits,
		maxEntries: 5000,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "too many authentication attempts, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) Allow(ip string) bool {
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now

	if len(l.limiters) > l.maxEntries {
		l.evictIdle(now)
	}

	return entry.limiter.Allow()
}

func (l *LoginRateLimiter) evictIdle(now time.Time) {
	threshold := now.Add(-10 * time.Minute)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(threshold) {
			delete(l.limiters, key)
		}
	}
}

func clientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
