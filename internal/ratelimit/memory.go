package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
)

// MemoryStore keeps counters in process. Checks are serialised by a mutex.
// It also satisfies RecordStore so the read-check-write path can run on it.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Key]models.RateLimitRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Key]models.RateLimitRecord)}
}

func (m *MemoryStore) Hit(ctx context.Context, key Key, policy Policy, now time.Time) (Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *models.RateLimitRecord
	if rec, ok := m.records[key]; ok {
		current = &rec
	}

	next, hit, write := Apply(current, key, policy, now)
	if write {
		m.records[key] = next
	}
	return hit, nil
}

func (m *MemoryStore) Get(ctx context.Context, key Key) (*models.RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec *models.RateLimitRecord) error {
	return m.put(rec)
}

func (m *MemoryStore) Update(ctx context.Context, rec *models.RateLimitRecord) error {
	return m.put(rec)
}

func (m *MemoryStore) put(rec *models.RateLimitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[Key{UserID: rec.UserID, Function: rec.FunctionName}] = *rec
	return nil
}
