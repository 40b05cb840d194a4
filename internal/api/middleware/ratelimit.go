package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/metrics"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterMaxIdle         = 30 * time.Minute
)

// RateLimiter is a token bucket limiter with one bucket per client IP
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	enabled  bool
	now      func() time.Time

	lastCleanup time.Time
}

// NewRateLimiter creates a limiter from the rate_limit configuration
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}

	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:    burst,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

// Allow reports whether a request from clientID is within its budget
func (l *RateLimiter) Allow(clientID string) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	now := l.now()
	limiter, ok := l.limiters[clientID]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[clientID] = limiter
	}
	l.lastSeen[clientID] = now
	if now.Sub(l.lastCleanup) > limiterCleanupInterval {
		l.cleanupLocked(now)
	}
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// cleanupLocked drops clients idle for longer than limiterMaxIdle
func (l *RateLimiter) cleanupLocked(now time.Time) {
	for clientID, seen := range l.lastSeen {
		if now.Sub(seen) > limiterMaxIdle {
			delete(l.limiters, clientID)
			delete(l.lastSeen, clientID)
		}
	}
	l.lastCleanup = now
}

// Clients returns the number of tracked clients
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimit rejects requests over the client's budget with 429
func RateLimit(l *RateLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		if m != nil {
			m.RateLimited.Inc()
		}
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "rate_limited",
			"message": "Too many requests",
		})
	}
}
