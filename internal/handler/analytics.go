package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/aman-churiwal/storyforge/internal/service"
	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	service *service.AnalyticsService
}

func NewAnalyticsHandler(service *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Handles GET /admin/usage/summary
func (h *AnalyticsHandler) GetSummary(c *gin.Context) {
	filter, err := parseUsageFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), filter)
	if err != nil {
		logger.Error("failed to load usage summary", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Handles GET /admin/usage/hourly
func (h *AnalyticsHandler) GetTimeSeries(c *gin.Context) {
	filter, err := parseUsageFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timeSeriesData, err := h.service.GetTimeSeriesData(c.Request.Context(), filter)
	if err != nil {
		logger.Error("failed to load usage time series", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage time series"})
		return
	}

	c.JSON(http.StatusOK, timeSeriesData)
}

// Handles GET /admin/usage/users/:id
func (h *AnalyticsHandler) GetUserStats(c *gin.Context) {
	filter, err := parseUsageFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter.UserID = c.Param("id")

	summary, err := h.service.GetSummary(c.Request.Context(), filter)
	if err != nil {
		logger.Error("failed to load user usage", "error", err, "user_id", filter.UserID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": filter.UserID,
		"summary": summary,
	})
}

// Handles GET /admin/usage/logs
func (h *AnalyticsHandler) GetLogs(c *gin.Context) {
	filter, err := parseUsageFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Parse pagination
	filter.Limit = 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			filter.Limit = l
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	logs, err := h.service.GetLogs(c.Request.Context(), filter)
	if err != nil {
		logger.Error("failed to load usage logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// Reads from/to plus the optional user_id and function filters
func parseUsageFilter(c *gin.Context) (models.UsageFilter, error) {
	from, to, err := parseTimeRange(c)
	if err != nil {
		return models.UsageFilter{}, err
	}

	return models.UsageFilter{
		UserID:       c.Query("user_id"),
		FunctionName: c.Query("function"),
		From:         from,
		To:           to,
	}, nil
}

// Parses 'from' and 'to' query parameters
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	// Default: last 24 hours
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if fromStr := c.Query("from"); fromStr != "" {
		parsedFrom, err := parseTime(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsedFrom
	}

	if toStr := c.Query("to"); toStr != "" {
		parsedTo, err := parseTime(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsedTo
	}

	return from, to, nil
}

// Accepts RFC3339 or a unix timestamp in seconds
func parseTime(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return parsed, nil
	}
	if timestamp, convErr := strconv.ParseInt(value, 10, 64); convErr == nil {
		return time.Unix(timestamp, 0), nil
	}
	return time.Time{}, err
}
