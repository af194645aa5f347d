package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// CheckRateLimit runs the per-user check for one function and writes the quota headers.
// It answers 429 or 500 itself and returns false when the request must stop there.
// Handlers call it after decoding the body so malformed requests cost no quota.
func CheckRateLimit(c *gin.Context, limiter ratelimit.Limiter, userID, function string) bool {
	decision, err := limiter.Check(c.Request.Context(), userID, function)
	if err != nil {
		logger.Error("rate limit check failed",
			"error", err,
			"user_id", userID,
			"function", function,
			"request_id", c.GetString(RequestIDKey),
		)
		if errors.Is(err, ratelimit.ErrUnknownFunction) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit misconfigured"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
		}
		c.Abort()
		return false
	}

	// Set rate limit headers
	c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

	if !decision.Allowed {
		retryAfter := int(time.Until(decision.ResetAt).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}

		logger.Info("rate limit exceeded", "user_id", userID, "function", function)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Rate limit exceeded. Please try again later.",
			"remaining":   0,
			"retry_after": decision.ResetAt.Unix(),
		})
		c.Abort()
		return false
	}

	return true
}
