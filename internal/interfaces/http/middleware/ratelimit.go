package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// RateLimiter decides whether the caller identified by key may proceed.
type RateLimiter interface {
	Allow(key string) (bool, RateLimitInfo)
}

type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter is an in-memory per-key token bucket. Idle buckets are
// swept every cleanupInterval.
type TokenBucketLimiter struct {
	rate            float64
	burst           int
	cleanupInterval time.Duration
	now             func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
	stop    chan struct{}
	once    sync.Once
}

func NewTokenBucketLimiter(rate float64, burst int, cleanupInterval time.Duration) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &TokenBucketLimiter{
		rate:            rate,
		burst:           burst,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		buckets:         make(map[string]*tokenBucket),
		stop:            make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.cleanupLoop()
	}
	return l
}

func (l *TokenBucketLimiter) Allow(key string) (bool, RateLimitInfo) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.burst), lastRefill: now}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = min(float64(l.burst), b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate)
	b.lastRefill = now

	info := RateLimitInfo{Limit: l.burst, ResetAt: now.Add(time.Duration(float64(time.Second) / l.rate))}
	if b.tokens < 1 {
		return false, info
	}
	b.tokens--
	info.Remaining = int(b.tokens)
	return true, info
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets that have refilled and sat idle past the interval.
func (l *TokenBucketLimiter) cleanup() {
	threshold := l.now().Add(-l.cleanupInterval)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.mu.Lock()
		if b.lastRefill.Before(threshold) && b.tokens >= float64(l.burst)-1 {
			delete(l.buckets, key)
		}
		b.mu.Unlock()
	}
}

func (l *TokenBucketLimiter) Stop() { l.once.Do(func() { close(l.stop) }) }

// BucketCount returns the number of tracked keys.
func (l *TokenBucketLimiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit rejects callers over their budget with 429 and a Retry-After
// header. Callers are keyed by owner id, falling back to the remote address.
func RateLimit(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, info := limiter.Allow(rateLimitKey(r))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
			if !allowed {
				retryAfter := max(1, int(time.Until(info.ResetAt).Seconds()+0.5))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, errors.New(errors.ErrCodeTooManyRequests, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if owner := OwnerFromContext(r.Context()); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + r.RemoteAddr
}
