package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/aman-churiwal/storyforge/internal/usage"
)

type AnalyticsService struct {
	repository usage.Reader
	now        func() time.Time
}

func NewAnalyticsService(repo usage.Reader) *AnalyticsService {
	return &AnalyticsService{
		repository: repo,
		now:        time.Now,
	}
}

// Holds a caller's own usage for the dashboard
type UserUsage struct {
	UserID     string               `json:"user_id"`
	PeriodDays int                  `json:"period_days"`
	From       time.Time            `json:"from"`
	To         time.Time            `json:"to"`
	Summary    *models.UsageSummary `json:"summary"`
}

// Retrieves usage totals for a filter
func (s *AnalyticsService) GetSummary(ctx context.Context, filter models.UsageFilter) (*models.UsageSummary, error) {
	filter.Limit, filter.Offset = 0, 0
	return s.repository.Summary(ctx, filter)
}

// Retrieves hourly request counts
func (s *AnalyticsService) GetTimeSeriesData(ctx context.Context, filter models.UsageFilter) ([]models.HourlyCount, error) {
	filter.Limit, filter.Offset = 0, 0
	timeSeries, err := s.repository.HourlyCounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if timeSeries == nil {
		timeSeries = []models.HourlyCount{}
	}
	return timeSeries, nil
}

// Retrieves usage logs with pagination and filtering
func (s *AnalyticsService) GetLogs(ctx context.Context, filter models.UsageFilter) ([]models.UsageLog, error) {
	logs, err := s.repository.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.UsageLog{}
	}
	return logs, nil
}

// Retrieves one user's usage over the last `days` days
func (s *AnalyticsService) GetUserUsage(ctx context.Context, userID string, days int) (*UserUsage, error) {
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)

	summary, err := s.repository.Summary(ctx, models.UsageFilter{
		UserID: userID,
		From:   from,
		To:     to,
	})
	if err != nil {
		return nil, err
	}

	return &UserUsage{
		UserID:     userID,
		PeriodDays: days,
		From:       from,
		To:         to,
		Summary:    summary,
	}, nil
}
