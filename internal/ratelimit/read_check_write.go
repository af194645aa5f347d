package ratelimit

import (
	"context"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
)

// RecordStore is plain get/insert/update-by-key access to rate limit rows.
type RecordStore interface {
	// Get returns nil, nil when the pair has no row yet.
	Get(ctx context.Context, key Key) (*models.RateLimitRecord, error)
	Insert(ctx context.Context, rec *models.RateLimitRecord) error
	Update(ctx context.Context, rec *models.RateLimitRecord) error
}

// ReadCheckWriteStore looks the row up, decides, then writes it back as three
// separate steps. Two concurrent checks for the same key can both read the
// same count and both be allowed, so a burst can overshoot the limit by the
// number of requests in flight. Use an atomic Store unless the backend only
// offers plain get/insert/update.
type ReadCheckWriteStore struct {
	records RecordStore
}

func NewReadCheckWrite(records RecordStore) *ReadCheckWriteStore {
	return &ReadCheckWriteStore{records: records}
}

func (s *ReadCheckWriteStore) Hit(ctx context.Context, key Key, policy Policy, now time.Time) (Hit, error) {
	current, err := s.records.Get(ctx, key)
	if err != nil {
		return Hit{}, err
	}

	next, hit, write := Apply(current, key, policy, now)
	if !write {
		return hit, nil
	}

	if current == nil {
		err = s.records.Insert(ctx, &next)
	} else {
		err = s.records.Update(ctx, &next)
	}
	if err != nil {
		return Hit{}, err
	}

	return hit, nil
}
