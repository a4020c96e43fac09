package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/catalog/pkg/httputil"
	"github.com/utafrali/catalog/pkg/logger"
)

const visitorTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client IP. Idle buckets are swept on
// access once per TTL, so no background goroutine is needed.
type visitors struct {
	mu        sync.Mutex
	byIP      map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newVisitors(rps float64, burst int) *visitors {
	return &visitors{
		byIP:      make(map[string]*visitor),
		limit:     rate.Limit(rps),
		burst:     burst,
		ttl:       visitorTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (v *visitors) allow(ip string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastSweep) >= v.ttl {
		for k, vis := range v.byIP {
			if now.Sub(vis.lastSeen) > v.ttl {
				delete(v.byIP, k)
			}
		}
		v.lastSweep = now
	}

	vis, ok := v.byIP[ip]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.byIP[ip] = vis
	}
	vis.lastSeen = now
	return vis.limiter.AllowN(now, 1)
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byIP)
}

// RateLimit enforces a per-client token bucket of rps requests per second
// with the given burst. Rejected requests get 429 and a Retry-After header.
func RateLimit(rps float64, burst int, l *slog.Logger) func(http.Handler) http.Handler {
	return rateLimit(newVisitors(rps, burst), l)
}

func rateLimit(v *visitors, l *slog.Logger) func(http.Handler) http.Handler {
	retryAfter := "1"
	if v.limit > 0 && v.limit < 1 {
		retryAfter = strconv.Itoa(int(1/float64(v.limit)) + 1)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !v.allow(ip) {
				logger.WithContext(r.Context(), l).WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", retryAfter)
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
