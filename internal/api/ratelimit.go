package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tradevera/internal/auth"
)

// RateLimiter hands out one token bucket per key
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perSecond sustained with burst.
// A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.limiters[key]
	if !ok {
		r.evictIdleLocked(now)
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for key, e := range r.limiters {
		if now.Sub(e.lastSeen) > r.idleTTL {
			delete(r.limiters, key)
		}
	}
}

// perUserRateLimit limits the wrapped route per authenticated user, falling back to client IP.
func perUserRateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := auth.GetUserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !limiter.Allow(key) {
			retry := 1.0
			if limiter.limit != rate.Inf && limiter.limit > 0 {
				retry = 1 / float64(limiter.limit)
			}
			c.Header("Retry-After", strconv.Itoa(max(1, int(retry+0.999))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many requests, slow down",
			})
			return
		}
		c.Next()
	}
}
