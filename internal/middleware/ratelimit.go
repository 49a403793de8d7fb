package middleware

import (
	"net/http"
	"sync"
	"time"

	"chatrelay-backend/internal/model"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// RateLimit applies a per-client-IP token bucket. Clients idle for longer
// than idleTTL are forgotten.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	const idleTTL = 10 * time.Minute

	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu        sync.Mutex
		clients   = make(map[string]*client)
		lastSweep = time.Now()
	)

	every := rate.Every(time.Minute / time.Duration(max(cfg.RequestsPerMinute, 1)))
	burst := max(cfg.Burst, 1)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastSweep) > idleTTL {
			for key, cl := range clients {
				if now.Sub(cl.lastSeen) > idleTTL {
					delete(clients, key)
				}
			}
			lastSweep = now
		}
		cl, exists := clients[ip]
		if !exists {
			cl = &client{limiter: rate.NewLimiter(every, burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		limiter := cl.limiter
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				model.NewErrorResponse("rate limit exceeded", model.ErrorTypeRateLimit))
			return
		}

		c.Next()
	}
}
