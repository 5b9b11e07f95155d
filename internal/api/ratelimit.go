package api

import (
	"encoding/json/v2"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tangleapp/tangle-server/internal/ratelimit"
)

// NewAuthRateLimiter creates the limiter protecting credential endpoints.
// rate: number of requests allowed per interval, per client IP.
func NewAuthRateLimiter(ratePerInterval int, interval time.Duration, burst int) *ratelimit.KeyedRateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// authRateLimitMiddleware limits requests to /api/v1/auth/ by client IP.
// Other paths pass through untouched. Returns 429 when the limit is exceeded.
func authRateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
				next.ServeHTTP(w, r)
				return
			}

			// RealIP middleware has already rewritten RemoteAddr.
			key := r.RemoteAddr
			if i := strings.LastIndex(key, ":"); i >= 0 {
				key = key[:i]
			}

			if !limiter.Allow(key) {
				logger.Warn("rate limit exceeded",
					"ip", key,
					"path", r.URL.Path,
				)
				writeTooManyRequests(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	body := envelope{
		Success: false,
		Error: &APIError{
			Code:    "RATE_LIMITED",
			Message: "Too many requests. Please try again later.",
		},
	}
	_ = json.MarshalWrite(w, body)
}
