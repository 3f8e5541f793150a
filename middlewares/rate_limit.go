package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor holds the rate limiter and the last time we saw this IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	// General API visitors
	visitors   = make(map[string]*visitor)
	visitorsMu sync.Mutex

	// Stricter visitors for the operator routes (start-game, reset)
	adminVisitors   = make(map[string]*visitor)
	adminVisitorsMu sync.Mutex
)

// newVisitorLimiter creates a new limiter for general API calls.
// 1 request/second average, burst of 100.
func newVisitorLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Second), 100)
}

// newAdminVisitorLimiter creates a stricter limiter for operator routes.
// 1 request every 10 seconds on average, burst of 3.
func newAdminVisitorLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(10*time.Second), 3)
}

func getVisitor(ip string) *rate.Limiter {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()

	v, exists := visitors[ip]
	if !exists {
		limiter := newVisitorLimiter()
		visitors[ip] = &visitor{
			limiter:  limiter,
			lastSeen: time.Now(),
		}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func getAdminVisitor(ip string) *rate.Limiter {
	adminVisitorsMu.Lock()
	defer adminVisitorsMu.Unlock()

	v, exists := adminVisitors[ip]
	if !exists {
		limiter := newAdminVisitorLimiter()
		adminVisitors[ip] = &visitor{
			limiter:  limiter,
			lastSeen: time.Now(),
		}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// RateLimitMiddleware applies a simple per-IP rate limit for all routes.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := getVisitor(ip)

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Please slow down.",
			})
			return
		}

		c.Next()
	}
}

// AdminRateLimitMiddleware applies a stricter per-IP rate limit for the
// operator routes that mutate the whole tournament.
func AdminRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := getAdminVisitor(ip)

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many tournament operations. Please wait and try again.",
			})
			return
		}

		c.Next()
	}
}
