package models

import "time"

// UsageLog is one successful upstream AI invocation. Append-only.
type UsageLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"index;size:255;not null" json:"user_id"`
	FunctionName string    `gorm:"index;size:64;not null" json:"function_name"`
	ModelUsed    string    `gorm:"size:255;not null" json:"model_used"`
	TokensUsed   int       `gorm:"not null;default:0" json:"tokens_used"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}

// UsageFilter narrows usage log queries. Zero values mean "no filter".
type UsageFilter struct {
	UserID       string
	FunctionName string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

// Matches reports whether an entry passes the filter, ignoring paging.
func (f UsageFilter) Matches(entry UsageLog) bool {
	if f.UserID != "" && entry.UserID != f.UserID {
		return false
	}
	if f.FunctionName != "" && entry.FunctionName != f.FunctionName {
		return false
	}
	if !f.From.IsZero() && entry.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && entry.CreatedAt.After(f.To) {
		return false
	}
	return true
}

// UsageSummary aggregates usage logs.
type UsageSummary struct {
	TotalRequests int64            `json:"total_requests"`
	ByFunction    map[string]int64 `json:"by_function"`
	ByModel       map[string]int64 `json:"by_model"`
	TotalTokens   int64            `json:"total_tokens"`
}

func NewUsageSummary() *UsageSummary {
	return &UsageSummary{
		ByFunction: make(map[string]int64),
		ByModel:    make(map[string]int64),
	}
}

// HourlyCount is one bucket of a usage time series.
type HourlyCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}
