package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/groundrag/internal/logging"
)

const (
	defaultRateLimit = 10 // queries per second per client IP
	defaultRateBurst = 20
	staleAfter       = 5 * time.Minute
	evictInterval    = time.Minute
)

// bucket is one client's token bucket plus its last use.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter throttles POST /v1/query per client IP. A single query can cost
// an embedding call, a vector search and several model calls, so the limit is
// sized against backend quota.
type rateLimiter struct {
	rps   rate.Limit
	burst int
	log   *slog.Logger

	// onReject is called once per rejected request when non-nil.
	onReject func()

	mu       sync.Mutex
	limiters map[string]*bucket
}

// newRateLimiter returns a limiter whose idle buckets are swept in the
// background until stop is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (rl *rateLimiter, stop func()) {
	rl = &rateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
		limiters: make(map[string]*bucket),
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(evictInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.evict()
			}
		}
	}()
	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.limiters[ip]
	if b == nil {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (rl *rateLimiter) evict() {
	cutoff := time.Now().Add(-staleAfter)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.getLimiter(ip).Allow() {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded", slog.String("ip", ip))
		if rl.onReject != nil {
			rl.onReject()
		}
		w.Header().Set("Retry-After", rl.retryAfter())
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// retryAfter is the whole number of seconds until one token refills, at
// least one.
func (rl *rateLimiter) retryAfter() string {
	secs := 1.0
	if rl.rps > 0 && !math.IsInf(float64(rl.rps), 1) {
		secs = max(1, math.Ceil(1/float64(rl.rps)))
	}
	return strconv.Itoa(int(secs))
}

// clientIP is the peer address without its port. X-Forwarded-For is ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
