package ratelimit

import (
	"testing"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := Key{UserID: "u1", Function: "chat"}
	policy := Policy{Limit: 3, Window: time.Minute}

	tests := []struct {
		name      string
		current   *models.RateLimitRecord
		wantCount int
		wantStart time.Time
		allowed   bool
		write     bool
	}{
		{
			name:      "first request creates the record",
			current:   nil,
			wantCount: 1, wantStart: now, allowed: true, write: true,
		},
		{
			name:      "active window increments",
			current:   &models.RateLimitRecord{UserID: "u1", FunctionName: "chat", RequestCount: 1, WindowStart: now.Add(-10 * time.Second)},
			wantCount: 2, wantStart: now.Add(-10 * time.Second), allowed: true, write: true,
		},
		{
			name:      "full window denies without writing",
			current:   &models.RateLimitRecord{UserID: "u1", FunctionName: "chat", RequestCount: 3, WindowStart: now.Add(-10 * time.Second)},
			wantCount: 3, wantStart: now.Add(-10 * time.Second), allowed: false, write: false,
		},
		{
			name:      "expired window resets regardless of count",
			current:   &models.RateLimitRecord{UserID: "u1", FunctionName: "chat", RequestCount: 500, WindowStart: now.Add(-time.Minute)},
			wantCount: 1, wantStart: now, allowed: true, write: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, hit, write := Apply(tt.current, key, policy, now)
			assert.Equal(t, tt.allowed, hit.Allowed)
			assert.Equal(t, tt.write, write)
			assert.Equal(t, tt.wantCount, hit.Count)
			assert.Equal(t, tt.wantStart, hit.WindowStart)
			assert.Equal(t, tt.wantCount, next.RequestCount)
			assert.Equal(t, "u1", next.UserID)
			assert.Equal(t, "chat", next.FunctionName)
		})
	}
}
