package middleware

import (
	"math"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/ai-proxy/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter keeps a token bucket per client IP.
type RateLimiter struct {
	clients map[string]*rate.Limiter
	mu      sync.RWMutex
	rps     rate.Limit
	burst   int
	logger  *zap.Logger
}

func NewRateLimiter(rps float64, burst int, logger *zap.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.clients[ip]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// another request may have created it while we waited for the lock
	if limiter, exists = rl.clients[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.rps, rl.burst)
	rl.clients[ip] = limiter
	return limiter
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		if !rl.limiter(ip).Allow() {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("ip", ip),
				zap.String("path", c.Request.URL.Path),
			)

			if rl.rps > 0 {
				retry := int(math.Ceil(1 / float64(rl.rps)))
				c.Header("Retry-After", strconv.Itoa(max(retry, 1)))
			}

			apiErr := api.RateLimitError("Rate limit exceeded")
			c.AbortWithStatusJSON(apiErr.Code, apiErr)
			return
		}

		c.Next()
	}
}
