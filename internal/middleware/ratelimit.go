package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the rate limiter middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit (tokens added per second).
	RequestsPerSecond float64
	// Burst is the maximum number of requests allowed in a burst.
	Burst int
}

// principalLimiter tracks a per-principal rate limiter and when it was last seen.
type principalLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns an HTTP middleware that enforces a per-principal
// token-bucket rate limit; anonymous requests are bucketed by client IP.
// When the limit is exceeded, it responds with 429 Too Many Requests and
// sets standard rate-limit headers. It must run after Auth so the principal
// is in the context.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	var principals sync.Map // map[string]*principalLimiter

	// Background cleanup: remove stale entries every 5 minutes.
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			principals.Range(func(key, value any) bool {
				pl := value.(*principalLimiter)
				if time.Since(pl.lastSeen) > 10*time.Minute {
					principals.Delete(key)
				}
				return true
			})
		}
	}()

	getLimiter := func(key string) *rate.Limiter {
		if v, ok := principals.Load(key); ok {
			pl := v.(*principalLimiter)
			pl.lastSeen = time.Now()
			return pl.limiter
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		principals.Store(key, &principalLimiter{limiter: limiter, lastSeen: time.Now()})
		return limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := getLimiter(limiterKey(r))

			reservation := limiter.Reserve()
			if !reservation.OK() {
				// Limiter cannot grant the request even with infinite wait.
				writeTooManyRequests(w, 0)
				return
			}

			delay := reservation.Delay()
			if delay > 0 {
				// Over the rate: return the reservation and reject.
				reservation.Cancel()
				retryAfter := int(delay.Seconds()) + 1
				writeTooManyRequests(w, retryAfter)
				return
			}

			// Set rate-limit headers on all responses.
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// limiterKey buckets authenticated principals by name and everyone else by
// client IP, so one anonymous client cannot drain a shared bucket.
func limiterKey(r *http.Request) string {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || principal == "" || principal == AnonymousPrincipal {
		return clientIP(r)
	}
	return principal
}

// clientIP extracts the client IP from RemoteAddr, stripping the port.
// Forwarded headers are not trusted for bucketing.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    429,
		"message": "rate limit exceeded",
	})
}
