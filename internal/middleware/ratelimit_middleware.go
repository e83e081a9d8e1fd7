package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"videotube-server/pkg/response"

	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// RateLimitMiddleware throttles requests per client IP as resolved by ips. A
// limiter error lets the request through so a Redis outage does not lock
// users out.
func RateLimitMiddleware(limiter Limiter, ips *IPResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ip := ips.ClientIP(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("ip", ip), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				response.TooManyRequests(w, "Too many attempts, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
