package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aman-churiwal/storyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct {
	calls int
}

func (f *failingWriter) Create(context.Context, *models.UsageLog) error {
	f.calls++
	return errors.New("connection refused")
}

type ctxWriter struct {
	err error
}

func (c *ctxWriter) Create(ctx context.Context, _ *models.UsageLog) error {
	c.err = ctx.Err()
	return nil
}

func TestRecordAppendsOneRow(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, time.Second)
	rec.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	rec.Record(context.Background(), "u1", "chat", "google/gemini-2.5-flash")

	logs, err := store.List(context.Background(), models.UsageFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "u1", logs[0].UserID)
	assert.Equal(t, "chat", logs[0].FunctionName)
	assert.Equal(t, "google/gemini-2.5-flash", logs[0].ModelUsed)
	assert.Equal(t, 0, logs[0].TokensUsed)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), logs[0].CreatedAt)
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	w := &failingWriter{}
	rec := NewRecorder(w, time.Second)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), "u1", "story-generation", "m")
	})
	assert.Equal(t, 1, w.calls)
}

func TestRecordSurvivesCancelledRequest(t *testing.T) {
	w := &ctxWriter{}
	rec := NewRecorder(w, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, "u1", "chat", "m")

	assert.NoError(t, w.err)
}

func TestMemoryStoreQueries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)

	for _, e := range []models.UsageLog{
		{UserID: "u1", FunctionName: "story-generation", ModelUsed: "a", CreatedAt: base},
		{UserID: "u1", FunctionName: "chat", ModelUsed: "a", CreatedAt: base.Add(20 * time.Minute)},
		{UserID: "u2", FunctionName: "image-generation", ModelUsed: "b", CreatedAt: base.Add(time.Hour)},
	} {
		require.NoError(t, store.Create(ctx, &e))
	}

	t.Run("list newest first", func(t *testing.T) {
		logs, err := store.List(ctx, models.UsageFilter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "chat", logs[0].FunctionName)
	})

	t.Run("paging", func(t *testing.T) {
		logs, err := store.List(ctx, models.UsageFilter{Limit: 1, Offset: 2})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "story-generation", logs[0].FunctionName)

		logs, err = store.List(ctx, models.UsageFilter{Offset: 5})
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("summary", func(t *testing.T) {
		s, err := store.Summary(ctx, models.UsageFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), s.TotalRequests)
		assert.Equal(t, int64(2), s.ByModel["a"])
		assert.Equal(t, int64(1), s.ByFunction["image-generation"])
	})

	t.Run("hourly", func(t *testing.T) {
		h, err := store.HourlyCounts(ctx, models.UsageFilter{})
		require.NoError(t, err)
		require.Len(t, h, 2)
		assert.Equal(t, int64(2), h[0].Count)
		assert.Equal(t, base.Truncate(time.Hour), h[0].Hour)
	})

	t.Run("time range", func(t *testing.T) {
		logs, err := store.List(ctx, models.UsageFilter{From: base.Add(time.Minute), To: base.Add(30 * time.Minute)})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "chat", logs[0].FunctionName)
	})
}
