package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	// lastRefill only advances by the time the added tokens account for,
	// so sub-second polling keeps its fractional refill credit instead of
	// resetting the clock on every call.
	tokensToAdd := int(elapsed.Seconds() * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens >= tb.capacity {
			tb.tokens = tb.capacity
			tb.lastRefill = now
		} else {
			credited := time.Duration(float64(tokensToAdd) / float64(tb.refillRate) * float64(time.Second))
			tb.lastRefill = tb.lastRefill.Add(credited)
		}
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// RateLimiter keeps a token bucket per client key.
type RateLimiter struct {
	limiters   map[string]*TokenBucket
	mu         sync.RWMutex
	capacity   int
	refillRate int

	cleanupInterval time.Duration
	lastAccess      map[string]time.Time
	done            chan struct{}
}

// NewRateLimiter creates a rate limiter allowing requests per duration for
// each client key.
func NewRateLimiter(requests int, duration time.Duration) *RateLimiter {
	refillRate := int(float64(requests) / duration.Seconds())
	if refillRate == 0 {
		refillRate = 1
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*TokenBucket),
		lastAccess:      make(map[string]time.Time),
		capacity:        requests,
		refillRate:      refillRate,
		cleanupInterval: 5 * time.Minute,
		done:            make(chan struct{}),
	}

	go rl.cleanupRoutine()

	return rl
}

// getLimiter returns the bucket for a key, creating it on first access.
func (rl *RateLimiter) getLimiter(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = NewTokenBucket(rl.capacity, rl.refillRate)
		rl.limiters[key] = limiter
	}

	rl.lastAccess[key] = time.Now()
	return limiter
}

// Allow reports whether the key may issue another request.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// cleanupRoutine periodically drops idle buckets.
func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup removes buckets idle for more than 10 minutes.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	var cleaned int

	for key, lastAccessed := range rl.lastAccess {
		if lastAccessed.Before(cutoff) {
			delete(rl.limiters, key)
			delete(rl.lastAccess, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		log.Debug().
			Int("cleaned_count", cleaned).
			Int("remaining_count", len(rl.limiters)).
			Msg("cleaned up rate limiters")
	}
}

// Close stops the cleanup routine.
func (rl *RateLimiter) Close() {
	close(rl.done)
}

// RateLimit rejects clients that exceed their per-IP budget.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		if !limiter.Allow(key) {
			log.Warn().
				Str("ip", key).
				Str("user_agent", c.Request.UserAgent()).
				Msg("rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}

		c.Next()
	}
}
