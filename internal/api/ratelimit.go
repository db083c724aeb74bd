package api

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleEviction  = 10 * time.Minute
)

// ipLimiter throttles requests per client IP with a token bucket from
// golang.org/x/time/rate. It sits in front of the fingerprint quota as
// transport-level abuse control; the two limits are independent. Idle
// buckets are swept inline so no background goroutine is needed.
type ipLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ipBucket
	refill    rate.Limit
	burst     int
	lastSweep time.Time
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// newIPLimiter creates a limiter where every IP starts with burst tokens
// and regains refillPerSec tokens per second.
func newIPLimiter(refillPerSec float64, burst int) *ipLimiter {
	return &ipLimiter{
		buckets:   make(map[string]*ipBucket),
		refill:    rate.Limit(refillPerSec),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// take consumes one token for ip. When the bucket is empty it reports the
// delay until the next token so the handler can tell the client when to
// retry.
func (l *ipLimiter) take(ip string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterSweepInterval {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > limiterIdleEviction {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, exists := l.buckets[ip]
	if !exists {
		b = &ipBucket{lim: rate.NewLimiter(l.refill, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now

	res := b.lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// rateLimitMiddleware rejects requests from IPs that exhausted their token
// bucket, answering 429 with a Retry-After hint.
func rateLimitMiddleware(l *ipLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			ok, retryAfter := l.take(ip)
			if !ok {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				secs := int((retryAfter + time.Second - 1) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from the request.
//
// When trustProxy is true, checks X-Real-IP first (set by nginx/HAProxy),
// then X-Forwarded-For (first IP). Header values are validated with net.ParseIP
// to prevent injection of non-IP strings into rate limiter keys.
//
// When trustProxy is false, only uses RemoteAddr (safe default for direct exposure).
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// Prefer X-Real-IP (single value, set by reverse proxy)
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}

		// Fall back to X-Forwarded-For (first IP is the client)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw := xff
			if first, _, ok := strings.Cut(xff, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	// Fall back to RemoteAddr (strip port)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
