package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// bucket is the token bucket of one client IP.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-IP token bucket rate limiter. Stop releases its cleanup
// goroutine.
type Limiter struct {
	buckets  sync.Map // client IP -> *bucket
	rate     float64  // tokens added per second
	burst    int      // bucket capacity
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// exemptPaths are never rate limited, so load balancer probes keep working.
var exemptPaths = map[string]bool{
	"/api/v1/health": true,
	"/healthz":       true,
}

// staleAfter is how long an idle bucket is kept before cleanup drops it.
const staleAfter = 10 * time.Minute

// NewLimiter creates a limiter that allows rate requests per second per IP
// with bursts of up to burst requests, and starts its cleanup goroutine.
func NewLimiter(rate float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:  rate,
		burst: burst,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go l.cleanupLoop(5 * time.Minute)
	return l
}

// RateLimiter returns the middleware of a new Limiter. Use NewLimiter when
// the cleanup goroutine must be stopped.
func RateLimiter(rate float64, burst int) func(http.Handler) http.Handler {
	return NewLimiter(rate, burst).Middleware
}

// LoginRateLimiter allows 5 login attempts per minute per IP.
func LoginRateLimiter() *Limiter {
	return NewLimiter(5.0/60.0, 5)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := extractIP(r)
		allowed, remaining, retry := l.take(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// take refills the IP's bucket and tries to consume one token. It returns
// whether the request may pass, the whole tokens left, and, when refused,
// the seconds until a token is available.
func (l *Limiter) take(ip string) (bool, int, int) {
	now := l.now()
	val, _ := l.buckets.LoadOrStore(ip, &bucket{tokens: float64(l.burst), lastRefill: now})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = math.Min(float64(l.burst), b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, int(math.Floor(b.tokens)), 0
	}

	retry := 1
	if l.rate > 0 {
		retry = int(math.Ceil((1 - b.tokens) / l.rate))
	}
	return false, 0, max(retry, 1)
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops buckets that have been idle for longer than staleAfter.
func (l *Limiter) sweep() {
	threshold := l.now().Add(-staleAfter)
	l.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		stale := b.lastRefill.Before(threshold)
		b.mu.Unlock()
		if stale {
			l.buckets.Delete(key)
		}
		return true
	})
}

// extractIP returns the client IP, preferring the first X-Forwarded-For
// entry and X-Real-IP set by a reverse proxy over RemoteAddr.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
