package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/aman-churiwal/storyforge/internal/ratelimit"
	"github.com/aman-churiwal/storyforge/internal/storage"
	"gorm.io/gorm"
)

type RateLimitRepository struct {
	db *storage.Postgres
}

func NewRateLimitRepository(db *storage.Postgres) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Resets an expired window, increments an open one that still has room, and
// leaves a full one untouched. A full window updates no row, so RETURNING is empty.
const hitQuery = `
	INSERT INTO rate_limits (user_id, function_name, request_count, window_start)
	VALUES (@user_id, @function_name, 1, @now)
	ON CONFLICT (user_id, function_name) DO UPDATE SET
		request_count = CASE WHEN rate_limits.window_start <= @cutoff THEN 1 ELSE rate_limits.request_count + 1 END,
		window_start  = CASE WHEN rate_limits.window_start <= @cutoff THEN EXCLUDED.window_start ELSE rate_limits.window_start END
	WHERE rate_limits.window_start <= @cutoff OR rate_limits.request_count < @max_count
	RETURNING request_count, window_start
`

// Runs one fixed-window check as a single statement
func (r *RateLimitRepository) Hit(ctx context.Context, key ratelimit.Key, policy ratelimit.Policy, now time.Time) (ratelimit.Hit, error) {
	var row struct {
		RequestCount int
		WindowStart  time.Time
	}

	result := r.db.DB.WithContext(ctx).Raw(hitQuery, map[string]interface{}{
		"user_id":       key.UserID,
		"function_name": key.Function,
		"now":           now.UTC(),
		"cutoff":        now.Add(-policy.Window).UTC(),
		"max_count":     policy.Limit,
	}).Scan(&row)

	if result.Error != nil {
		return ratelimit.Hit{}, result.Error
	}

	if result.RowsAffected > 0 {
		return ratelimit.Hit{Allowed: true, Count: row.RequestCount, WindowStart: row.WindowStart}, nil
	}

	// Denied: report the untouched window for Retry-After.
	current, err := r.Get(ctx, key)
	if err != nil {
		return ratelimit.Hit{}, err
	}
	if current == nil {
		return ratelimit.Hit{Allowed: false, WindowStart: now}, nil
	}

	return ratelimit.Hit{Allowed: false, Count: current.RequestCount, WindowStart: current.WindowStart}, nil
}

// Retrieves the record for a (user, function) pair, nil when absent
func (r *RateLimitRepository) Get(ctx context.Context, key ratelimit.Key) (*models.RateLimitRecord, error) {
	var rec models.RateLimitRecord
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ? AND function_name = ?", key.UserID, key.Function).
		First(&rec).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *RateLimitRepository) Insert(ctx context.Context, rec *models.RateLimitRecord) error {
	return r.db.DB.WithContext(ctx).Create(rec).Error
}

func (r *RateLimitRepository) Update(ctx context.Context, rec *models.RateLimitRecord) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.RateLimitRecord{}).
		Where("user_id = ? AND function_name = ?", rec.UserID, rec.FunctionName).
		Updates(map[string]interface{}{
			"request_count": rec.RequestCount,
			"window_start":  rec.WindowStart,
		}).Error
}
