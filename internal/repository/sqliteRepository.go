package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/aman-churiwal/storyforge/internal/ratelimit"
	"github.com/aman-churiwal/storyforge/internal/storage"
)

// SQLiteRateLimitRepository is the sqlite twin of RateLimitRepository.
type SQLiteRateLimitRepository struct {
	db *storage.SQLite
}

func NewSQLiteRateLimitRepository(db *storage.SQLite) *SQLiteRateLimitRepository {
	return &SQLiteRateLimitRepository{db: db}
}

const sqliteHitQuery = `
	INSERT INTO rate_limits (user_id, function_name, request_count, window_start)
	VALUES (?1, ?2, 1, ?3)
	ON CONFLICT (user_id, function_name) DO UPDATE SET
		request_count = CASE WHEN rate_limits.window_start <= ?4 THEN 1 ELSE rate_limits.request_count + 1 END,
		window_start  = CASE WHEN rate_limits.window_start <= ?4 THEN excluded.window_start ELSE rate_limits.window_start END
	WHERE rate_limits.window_start <= ?4 OR rate_limits.request_count < ?5
	RETURNING request_count, window_start
`

func (r *SQLiteRateLimitRepository) Hit(ctx context.Context, key ratelimit.Key, policy ratelimit.Policy, now time.Time) (ratelimit.Hit, error) {
	var count int
	var start int64

	err := r.db.DB.QueryRowContext(ctx, sqliteHitQuery,
		key.UserID, key.Function, now.UnixMilli(), now.Add(-policy.Window).UnixMilli(), policy.Limit,
	).Scan(&count, &start)

	if err == nil {
		return ratelimit.Hit{Allowed: true, Count: count, WindowStart: time.UnixMilli(start)}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ratelimit.Hit{}, err
	}

	current, err := r.Get(ctx, key)
	if err != nil {
		return ratelimit.Hit{}, err
	}
	if current == nil {
		return ratelimit.Hit{Allowed: false, WindowStart: now}, nil
	}
	return ratelimit.Hit{Allowed: false, Count: current.RequestCount, WindowStart: current.WindowStart}, nil
}

func (r *SQLiteRateLimitRepository) Get(ctx context.Context, key ratelimit.Key) (*models.RateLimitRecord, error) {
	rec := models.RateLimitRecord{UserID: key.UserID, FunctionName: key.Function}
	var start int64

	err := r.db.DB.QueryRowContext(ctx,
		"SELECT request_count, window_start FROM rate_limits WHERE user_id = ? AND function_name = ?",
		key.UserID, key.Function,
	).Scan(&rec.RequestCount, &start)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.WindowStart = time.UnixMilli(start)
	return &rec, nil
}

func (r *SQLiteRateLimitRepository) Insert(ctx context.Context, rec *models.RateLimitRecord) error {
	_, err := r.db.DB.ExecContext(ctx,
		"INSERT INTO rate_limits (user_id, function_name, request_count, window_start) VALUES (?, ?, ?, ?)",
		rec.UserID, rec.FunctionName, rec.RequestCount, rec.WindowStart.UnixMilli(),
	)
	return err
}

func (r *SQLiteRateLimitRepository) Update(ctx context.Context, rec *models.RateLimitRecord) error {
	_, err := r.db.DB.ExecContext(ctx,
		"UPDATE rate_limits SET request_count = ?, window_start = ? WHERE user_id = ? AND function_name = ?",
		rec.RequestCount, rec.WindowStart.UnixMilli(), rec.UserID, rec.FunctionName,
	)
	return err
}

// SQLiteUsageLogRepository is the sqlite twin of UsageLogRepository.
type SQLiteUsageLogRepository struct {
	db *storage.SQLite
}

func NewSQLiteUsageLogRepository(db *storage.SQLite) *SQLiteUsageLogRepository {
	return &SQLiteUsageLogRepository{db: db}
}

func (r *SQLiteUsageLogRepository) Create(ctx context.Context, entry *models.UsageLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.DB.ExecContext(ctx,
		"INSERT INTO usage_logs (user_id, function_name, model_used, tokens_used, created_at) VALUES (?, ?, ?, ?, ?)",
		entry.UserID, entry.FunctionName, entry.ModelUsed, entry.TokensUsed, entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint(id)
	return nil
}

func usageWhere(f models.UsageFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.FunctionName != "" {
		clauses = append(clauses, "function_name = ?")
		args = append(args, f.FunctionName)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.UnixMilli())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *SQLiteUsageLogRepository) List(ctx context.Context, f models.UsageFilter) ([]models.UsageLog, error) {
	where, args := usageWhere(f)
	query := "SELECT id, user_id, function_name, model_used, tokens_used, created_at FROM usage_logs" +
		where + " ORDER BY created_at DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.UsageLog
	for rows.Next() {
		var entry models.UsageLog
		var created int64
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.FunctionName, &entry.ModelUsed, &entry.TokensUsed, &created); err != nil {
			return nil, err
		}
		entry.CreatedAt = time.UnixMilli(created).UTC()
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

func (r *SQLiteUsageLogRepository) Summary(ctx context.Context, f models.UsageFilter) (*models.UsageSummary, error) {
	summary := models.NewUsageSummary()

	byFunction, err := r.countBy(ctx, f, "function_name")
	if err != nil {
		return nil, err
	}
	for name, count := range byFunction {
		summary.ByFunction[name] = count
		summary.TotalRequests += count
	}

	if summary.ByModel, err = r.countBy(ctx, f, "model_used"); err != nil {
		return nil, err
	}

	where, args := usageWhere(f)
	err = r.db.DB.QueryRowContext(ctx, "SELECT COALESCE(SUM(tokens_used), 0) FROM usage_logs"+where, args...).
		Scan(&summary.TotalTokens)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

func (r *SQLiteUsageLogRepository) countBy(ctx context.Context, f models.UsageFilter, column string) (map[string]int64, error) {
	where, args := usageWhere(f)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM usage_logs%s GROUP BY %s", column, where, column)

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[string]int64)
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

func (r *SQLiteUsageLogRepository) HourlyCounts(ctx context.Context, f models.UsageFilter) ([]models.HourlyCount, error) {
	const hourMillis = int64(time.Hour / time.Millisecond)
	where, args := usageWhere(f)
	query := fmt.Sprintf(
		"SELECT (created_at / %d) * %d AS hour, COUNT(*) FROM usage_logs%s GROUP BY hour ORDER BY hour ASC",
		hourMillis, hourMillis, where,
	)

	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.HourlyCount
	for rows.Next() {
		var hour, count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, err
		}
		results = append(results, models.HourlyCount{Hour: time.UnixMilli(hour).UTC(), Count: count})
	}

	return results, rows.Err()
}
