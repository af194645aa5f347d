package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/aman-churiwal/storyforge/internal/storage"
	"gorm.io/gorm"
)

type UsageLogRepository struct {
	db *storage.Postgres
}

func NewUsageLogRepository(db *storage.Postgres) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

// Inserts a new usage log
func (r *UsageLogRepository) Create(ctx context.Context, entry *models.UsageLog) error {
	return r.db.DB.WithContext(ctx).Create(entry).Error
}

func (r *UsageLogRepository) filtered(ctx context.Context, f models.UsageFilter) *gorm.DB {
	db := r.db.DB.WithContext(ctx).Model(&models.UsageLog{})

	if f.UserID != "" {
		db = db.Where("user_id = ?", f.UserID)
	}
	if f.FunctionName != "" {
		db = db.Where("function_name = ?", f.FunctionName)
	}
	if !f.From.IsZero() {
		db = db.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		db = db.Where("created_at <= ?", f.To)
	}

	return db
}

// Retrieves logs newest first
func (r *UsageLogRepository) List(ctx context.Context, f models.UsageFilter) ([]models.UsageLog, error) {
	var logs []models.UsageLog

	db := r.filtered(ctx, f).Order("created_at DESC")
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	if f.Offset > 0 {
		db = db.Offset(f.Offset)
	}

	err := db.Find(&logs).Error
	return logs, err
}

// Counts logs by function and by model
func (r *UsageLogRepository) Summary(ctx context.Context, f models.UsageFilter) (*models.UsageSummary, error) {
	summary := models.NewUsageSummary()

	byFunction, err := r.countBy(ctx, f, "function_name")
	if err != nil {
		return nil, err
	}
	for name, count := range byFunction {
		summary.ByFunction[name] = count
		summary.TotalRequests += count
	}

	byModel, err := r.countBy(ctx, f, "model_used")
	if err != nil {
		return nil, err
	}
	summary.ByModel = byModel

	var tokens int64
	err = r.filtered(ctx, f).
		Select("COALESCE(SUM(tokens_used), 0)").
		Scan(&tokens).Error
	if err != nil {
		return nil, err
	}
	summary.TotalTokens = tokens

	return summary, nil
}

func (r *UsageLogRepository) countBy(ctx context.Context, f models.UsageFilter, column string) (map[string]int64, error) {
	results := make(map[string]int64)

	rows, err := r.filtered(ctx, f).
		Select(column + ", COUNT(*) as count").
		Group(column).
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int64

		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		results[name] = count
	}

	return results, rows.Err()
}

// Returns the request count grouped by hour
func (r *UsageLogRepository) HourlyCounts(ctx context.Context, f models.UsageFilter) ([]models.HourlyCount, error) {
	var results []models.HourlyCount

	rows, err := r.filtered(ctx, f).
		Select("DATE_TRUNC('hour', created_at) as hour, COUNT(*) as count").
		Group("hour").
		Order("hour ASC").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var hour time.Time
		var count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, err
		}
		results = append(results, models.HourlyCount{Hour: hour.UTC(), Count: count})
	}

	return results, rows.Err()
}
