// Package usage appends one usage log row per successful upstream call.
package usage

import (
	"context"
	"time"

	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/metrics"
	"github.com/aman-churiwal/storyforge/internal/models"
)

// Writer persists usage rows. Both repositories and MemoryStore satisfy it.
type Writer interface {
	Create(ctx context.Context, entry *models.UsageLog) error
}

// Reader answers the dashboard queries.
type Reader interface {
	List(ctx context.Context, f models.UsageFilter) ([]models.UsageLog, error)
	Summary(ctx context.Context, f models.UsageFilter) (*models.UsageSummary, error)
	HourlyCounts(ctx context.Context, f models.UsageFilter) ([]models.HourlyCount, error)
}

type Store interface {
	Writer
	Reader
}

type Recorder struct {
	writer  Writer
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(writer Writer, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{writer: writer, timeout: timeout, now: time.Now}
}

// Record writes a usage row and never fails the caller. Errors are logged and counted.
// The write outlives a cancelled request context since the upstream call already succeeded.
func (r *Recorder) Record(ctx context.Context, userID, function, model string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	entry := &models.UsageLog{
		UserID:       userID,
		FunctionName: function,
		ModelUsed:    model,
		TokensUsed:   0,
		CreatedAt:    r.now().UTC(),
	}

	if err := r.writer.Create(ctx, entry); err != nil {
		metrics.UsageLogFailures.WithLabelValues(function).Inc()
		logger.Error("failed to log usage",
			"error", err,
			"user_id", userID,
			"function", function,
			"model", model,
		)
	}
}
