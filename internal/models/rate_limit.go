package models

import "time"

// RateLimitRecord is the fixed-window counter for one (user, function) pair.
// Rows are reused across windows and never deleted.
type RateLimitRecord struct {
	UserID       string    `gorm:"primaryKey;size:255" json:"user_id"`
	FunctionName string    `gorm:"primaryKey;size:64" json:"function_name"`
	RequestCount int       `gorm:"not null;default:0" json:"request_count"`
	WindowStart  time.Time `gorm:"not null" json:"window_start"`
}

func (RateLimitRecord) TableName() string {
	return "rate_limits"
}
