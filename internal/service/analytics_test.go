package service

import (
	"context"
	"testing"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/aman-churiwal/storyforge/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserUsage(t *testing.T) {
	ctx := context.Background()
	store := usage.NewMemoryStore()
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)

	for _, e := range []models.UsageLog{
		{UserID: "u1", FunctionName: "chat", ModelUsed: "m", CreatedAt: now.Add(-time.Hour)},
		{UserID: "u1", FunctionName: "story-generation", ModelUsed: "m", CreatedAt: now.AddDate(0, 0, -10)},
		{UserID: "u1", FunctionName: "chat", ModelUsed: "m", CreatedAt: now.AddDate(0, 0, -45)},
		{UserID: "u2", FunctionName: "chat", ModelUsed: "m", CreatedAt: now.Add(-time.Hour)},
	} {
		require.NoError(t, store.Create(ctx, &e))
	}

	svc := NewAnalyticsService(store)
	svc.now = func() time.Time { return now }

	got, err := svc.GetUserUsage(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, got.PeriodDays)
	assert.Equal(t, int64(2), got.Summary.TotalRequests)
	assert.Equal(t, int64(1), got.Summary.ByFunction["chat"])
	assert.Equal(t, int64(1), got.Summary.ByFunction["story-generation"])
}

func TestEmptyResultsAreNotNil(t *testing.T) {
	svc := NewAnalyticsService(usage.NewMemoryStore())

	logs, err := svc.GetLogs(context.Background(), models.UsageFilter{})
	require.NoError(t, err)
	assert.NotNil(t, logs)

	series, err := svc.GetTimeSeriesData(context.Background(), models.UsageFilter{})
	require.NoError(t, err)
	assert.NotNil(t, series)
}
