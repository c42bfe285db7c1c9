package handler

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting in process memory. Stale entries are dropped every 5
// minutes until ctx is done.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*ipLimiter)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for ip, l := range limiters {
					if time.Since(l.lastSeen) > 10*time.Minute {
						delete(limiters, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			limiters[ip] = l
		}
		l.lastSeen = time.Now()
		mu.Unlock()

		if !l.limiter.Allow() {
			tooManyRequests(c, 1)
			return
		}
		c.Next()
	}
}

// redisWindowScript counts hits in the current one-second window and sets
// the window's expiry on first use.
var redisWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter returns a Gin middleware that limits each client IP to
// burst requests per second across every replica sharing client. When Redis
// is unreachable requests are let through and the error is logged.
func RedisRateLimiter(client redis.UniversalClient, prefix string, burst int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		window := time.Now().Unix()
		key := prefix + c.ClientIP() + ":" + strconv.FormatInt(window, 10)

		n, err := redisWindowScript.Run(c.Request.Context(), client, []string{key}, 1000).Int()
		if err != nil {
			logger.Warn("redis rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if n > burst {
			tooManyRequests(c, 1)
			return
		}
		c.Next()
	}
}

func tooManyRequests(c *gin.Context, retryAfter int) {
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": "rate limit exceeded",
	})
}
