package middleware

import (
	"net/http"
	"strconv"

	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
)

// AbuseGuard caps requests per client IP across all functions. It sits in front of
// identity resolution, so it also covers callers rotating user ids. Redis errors let
// the request through; the per-user limiter still applies.
func AbuseGuard(limiter *redis_rate.Limiter, perMinute int) gin.HandlerFunc {
	limit := redis_rate.PerMinute(perMinute)

	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), "abuse:"+c.ClientIP(), limit)
		if err != nil {
			logger.Warn("abuse guard unavailable", "error", err, "client_ip", c.ClientIP())
			c.Next()
			return
		}

		if res.Allowed == 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests from this address. Please slow down.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
