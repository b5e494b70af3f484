package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Each key gets its own limiter plus lastSeen for cleanup.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages map<key, limiter>.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	reqPerMin int
	burst     int
	ttl       time.Duration
	now       func() time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewKeyedRateLimiter allows reqPerMin per key with the given burst. Keys
// idle for longer than ttl are forgotten.
func NewKeyedRateLimiter(reqPerMin, burst int, ttl time.Duration) *KeyedRateLimiter {
	if reqPerMin <= 0 {
		reqPerMin = 60
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &KeyedRateLimiter{
		visitors:  make(map[string]*visitor),
		reqPerMin: reqPerMin,
		burst:     burst,
		ttl:       ttl,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	go rl.cleanupVisitors()
	return rl
}

func (rl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = rl.now()
		return v.limiter
	}

	// req/min -> rate.Limit (req/s)
	rps := float64(rl.reqPerMin) / 60.0
	limiter := rate.NewLimiter(rate.Limit(rps), rl.burst)
	rl.visitors[key] = &visitor{limiter: limiter, lastSeen: rl.now()}
	return limiter
}

// Allow reports whether key may proceed now.
func (rl *KeyedRateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

func (rl *KeyedRateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *KeyedRateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > rl.ttl {
			delete(rl.visitors, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (rl *KeyedRateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func rateLimit(rl *KeyedRateLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too Many Requests",
				"hint":    "Please try again in a moment.",
			})
			return
		}
		c.Next()
	}
}

// RateLimitByUser keys on the authenticated user; it must run after AuthJWT.
func RateLimitByUser(rl *KeyedRateLimiter) gin.HandlerFunc {
	return rateLimit(rl, func(c *gin.Context) string {
		return strconv.FormatUint(uint64(CurrentUser(c).ID), 10)
	})
}

// RateLimitByIP keys on the client address. Used for the auth endpoints.
func RateLimitByIP(rl *KeyedRateLimiter) gin.HandlerFunc {
	return rateLimit(rl, func(c *gin.Context) string { return c.ClientIP() })
}
