package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/service"
	"github.com/gin-gonic/gin"
)

const defaultUsageDays = 30

type UsageHandler struct {
	service *service.AnalyticsService
	config  *config.Store
}

func NewUsageHandler(service *service.AnalyticsService, cfg *config.Store) *UsageHandler {
	return &UsageHandler{service: service, config: cfg}
}

type functionLimit struct {
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}

// Handles GET /functions/v1/usage
func (h *UsageHandler) GetOwnUsage(c *gin.Context) {
	days := defaultUsageDays
	if daysStr := c.Query("days"); daysStr != "" {
		if d, err := strconv.Atoi(daysStr); err == nil && d > 0 && d <= 365 {
			days = d
		}
	}

	user := userID(c)
	result, err := h.service.GetUserUsage(c.Request.Context(), user, days)
	if err != nil {
		logger.Error("failed to load usage", "error", err, "user_id", user)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage"})
		return
	}

	cfg := h.config.Get()
	limits := make(map[string]functionLimit, 3)
	for _, fn := range []string{config.FunctionStory, config.FunctionImage, config.FunctionChat} {
		if p, ok := cfg.Policy(fn); ok {
			limits[fn] = functionLimit{Limit: p.Limit, WindowSeconds: int(p.Window / time.Second)}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"usage":  result,
		"limits": limits,
	})
}
