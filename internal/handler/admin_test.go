package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/aman-churiwal/storyforge/internal/repository"
	"github.com/aman-churiwal/storyforge/internal/service"
	"github.com/aman-churiwal/storyforge/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededUsage(t *testing.T) *usage.MemoryStore {
	t.Helper()
	store := usage.NewMemoryStore()
	now := time.Now().UTC()
	for _, e := range []models.UsageLog{
		{UserID: "u1", FunctionName: config.FunctionStory, ModelUsed: "m1", CreatedAt: now.Add(-2 * time.Hour)},
		{UserID: "u1", FunctionName: config.FunctionChat, ModelUsed: "m1", CreatedAt: now.Add(-time.Hour)},
		{UserID: "u2", FunctionName: config.FunctionImage, ModelUsed: "m2", CreatedAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, store.Create(context.Background(), &e))
	}
	return store
}

func TestGetOwnUsage(t *testing.T) {
	cfg := config.NewStore(&config.Config{RateLimit: config.RateLimitConfig{Functions: map[string]config.PolicyConfig{
		config.FunctionStory: {Limit: 10, Window: time.Minute},
		config.FunctionImage: {Limit: 5, Window: time.Minute},
		config.FunctionChat:  {Limit: 20, Window: time.Minute},
	}}})
	h := NewUsageHandler(service.NewAnalyticsService(seededUsage(t)), cfg)

	r := gin.New()
	r.GET("/functions/v1/usage", func(c *gin.Context) {
		c.Set("user_id", "u1")
		h.GetOwnUsage(c)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/functions/v1/usage", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Usage struct {
			UserID     string               `json:"user_id"`
			PeriodDays int                  `json:"period_days"`
			Summary    *models.UsageSummary `json:"summary"`
		} `json:"usage"`
		Limits map[string]functionLimit `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "u1", body.Usage.UserID)
	assert.Equal(t, 30, body.Usage.PeriodDays)
	assert.Equal(t, int64(2), body.Usage.Summary.TotalRequests)
	assert.Equal(t, functionLimit{Limit: 5, WindowSeconds: 60}, body.Limits[config.FunctionImage])
}

func TestAdminAnalytics(t *testing.T) {
	h := NewAnalyticsHandler(service.NewAnalyticsService(seededUsage(t)))

	r := gin.New()
	r.GET("/admin/usage/summary", h.GetSummary)
	r.GET("/admin/usage/logs", h.GetLogs)
	r.GET("/admin/usage/hourly", h.GetTimeSeries)
	r.GET("/admin/usage/users/:id", h.GetUserStats)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/admin/usage/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.UsageSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, int64(3), summary.TotalRequests)
	assert.Equal(t, int64(2), summary.ByModel["m1"])

	w = get("/admin/usage/logs?function=chat&limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Logs  []models.UsageLog `json:"logs"`
		Limit int               `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs.Logs, 1)
	assert.Equal(t, 5, logs.Limit)

	w = get("/admin/usage/users/u2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_requests":1`)

	w = get("/admin/usage/hourly")
	require.Equal(t, http.StatusOK, w.Code)

	w = get("/admin/usage/summary?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminLogin(t *testing.T) {
	svc := service.NewAuthService(repository.NewMemoryUserRepository(), "secret", 1)
	_, err := svc.EnsureAdmin(context.Background(), "admin@example.com", "hunter22")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/admin/login", NewAuthHandler(svc).Login)

	login := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := login(`{"email":"admin@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token"`)

	assert.Equal(t, http.StatusUnauthorized, login(`{"email":"admin@example.com","password":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, login(`{"email":"admin@example.com"}`).Code)
}
