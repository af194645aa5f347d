package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
)

// MemoryStore keeps usage rows in process. Used with database.driver "memory".
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.UsageLog
	nextID  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(_ context.Context, entry *models.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MemoryStore) matching(f models.UsageFilter) []models.UsageLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.UsageLog
	for _, e := range m.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) List(_ context.Context, f models.UsageFilter) ([]models.UsageLog, error) {
	logs := m.matching(f)
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].ID > logs[j].ID
		}
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(logs) {
			return nil, nil
		}
		logs = logs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(logs) {
		logs = logs[:f.Limit]
	}
	return logs, nil
}

func (m *MemoryStore) Summary(_ context.Context, f models.UsageFilter) (*models.UsageSummary, error) {
	summary := models.NewUsageSummary()
	for _, e := range m.matching(f) {
		summary.TotalRequests++
		summary.ByFunction[e.FunctionName]++
		summary.ByModel[e.ModelUsed]++
		summary.TotalTokens += int64(e.TokensUsed)
	}
	return summary, nil
}

func (m *MemoryStore) HourlyCounts(_ context.Context, f models.UsageFilter) ([]models.HourlyCount, error) {
	buckets := make(map[time.Time]int64)
	for _, e := range m.matching(f) {
		buckets[e.CreatedAt.UTC().Truncate(time.Hour)]++
	}

	out := make([]models.HourlyCount, 0, len(buckets))
	for hour, count := range buckets {
		out = append(out, models.HourlyCount{Hour: hour, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out, nil
}
