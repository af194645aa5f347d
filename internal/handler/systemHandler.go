package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BreakerReporter exposes the completion gateway's circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// Handles system-related endpoints
type SystemHandler struct {
	breaker BreakerReporter
}

func NewSystemHandler(breaker BreakerReporter) *SystemHandler {
	return &SystemHandler{breaker: breaker}
}

// Returns the completion gateway circuit breaker state
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"completion_gateway": gin.H{
			"state": h.breaker.BreakerState(),
		},
	})
}
