package ratelimit

import (
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
)

// Expired reports whether the record's window has fully elapsed at now.
func Expired(rec *models.RateLimitRecord, window time.Duration, now time.Time) bool {
	return !now.Before(rec.WindowStart.Add(window))
}

// Apply runs the fixed-window algorithm against the current record (nil when
// the pair has never been seen). It returns the record to persist, the hit and
// whether anything needs writing. A denied check never writes.
func Apply(rec *models.RateLimitRecord, key Key, policy Policy, now time.Time) (models.RateLimitRecord, Hit, bool) {
	if rec == nil || Expired(rec, policy.Window, now) {
		next := models.RateLimitRecord{
			UserID:       key.UserID,
			FunctionName: key.Function,
			RequestCount: 1,
			WindowStart:  now,
		}
		return next, Hit{Allowed: true, Count: 1, WindowStart: now}, true
	}

	if rec.RequestCount >= policy.Limit {
		return *rec, Hit{Allowed: false, Count: rec.RequestCount, WindowStart: rec.WindowStart}, false
	}

	next := *rec
	next.RequestCount++
	return next, Hit{Allowed: true, Count: next.RequestCount, WindowStart: next.WindowStart}, true
}
