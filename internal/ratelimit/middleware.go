package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/haulpoint/backend-haul/internal/common"
)

// Config derives the limit key for a request and sets the thresholds. A nil
// Key function disables the middleware.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Middleware returns a chi-compatible middleware enforcing cfg against the
// limiter. Limiter errors fail open: a Redis outage must not take the quote
// form down with it.
func Middleware(l Limiter, cfg Config, onError func(error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Key == nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed, remaining, reset, err := l.Allow(r.Context(), cfg.Key(r), cfg.Window, cfg.Max)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(reset).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ByClientIP is the default key function: one bucket per caller address.
func ByClientIP(route string) func(*http.Request) string {
	return func(r *http.Request) string {
		return route + ":" + common.ClientIP(r)
	}
}
