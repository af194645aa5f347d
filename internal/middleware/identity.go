package middleware

import (
	"net/http"

	"github.com/aman-churiwal/storyforge/internal/identity"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/gin-gonic/gin"
)

// UserIDKey holds the verified caller id in the gin context.
const UserIDKey = "user_id"

func Identity(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := verifier.Verify(c.Request)
		if err != nil {
			logger.Warn("identity rejected", "request_id", c.GetString(RequestIDKey), "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or invalid user identity",
			})
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
