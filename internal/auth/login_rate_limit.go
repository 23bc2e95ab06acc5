package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// IPLimitStore persists the per-IP fixed-window counters so the limit
// holds across instances. *Repository implements it.
type IPLimitStore interface {
	AllowLoginIP(ctx context.Context, ip string, maxHits int, window time.Duration, now time.Time) (bool, time.Duration, error)
}

// LoginRateLimiter throttles the login route per client IP. This is a
// transport guard in front of, and independent from, the per-account
// lockout policy.
type LoginRateLimiter struct {
	store   IPLimitStore
	maxHits int
	window  time.Duration
}

func NewLoginRateLimiter(store IPLimitStore, maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{store: store, maxHits: maxHits, window: window}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		now := time.Now().UTC()

		allowed, retryAfter, err := l.store.AllowLoginIP(r.Context(), ip, l.maxHits, l.window, now)
		if err != nil {
			// Fail open: a throttle outage must not block logins; the
			// account lockout still holds.
			sentry.CaptureException(err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
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
