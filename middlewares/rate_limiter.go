package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu  sync.Mutex
	ips map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows burst requests per interval from each IP.
func NewRateLimiter(burst int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit: rate.Every(interval / time.Duration(burst)),
		burst: burst,
		ttl:   3 * interval,
		ips:   make(map[string]*visitor),
	}
}

// NewStrictRateLimiter is for login and register: 5 requests a minute.
func NewStrictRateLimiter() gin.HandlerFunc {
	return NewRateLimiter(5, time.Minute).RateLimit("too many attempts, please wait a moment")
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.ips[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.ips[ip] = v
	}
	v.lastSeen = now

	for k, other := range rl.ips {
		if now.Sub(other.lastSeen) > rl.ttl {
			delete(rl.ips, k)
		}
	}
	return v.limiter.Allow()
}

func (rl *RateLimiter) RateLimit(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  false,
				"message": message,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
