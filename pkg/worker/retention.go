package worker

import (
	"context"
	"time"

	"github.com/igabaycare/care-api/pkg/logger"
	"github.com/igabaycare/care-api/pkg/metrics"
)

// RetentionTask removes rows of one table older than MaxAge.
type RetentionTask struct {
	Table  string
	MaxAge time.Duration
	Delete func(ctx context.Context, before time.Time) (int64, error)
}

// RetentionWorker prunes webhook receipts, published outbox events and
// audit logs on a fixed interval. Tasks with a zero MaxAge are skipped.
type RetentionWorker struct {
	tasks    []RetentionTask
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRetentionWorker(interval time.Duration, logger *logger.Logger, m *metrics.Metrics, tasks ...RetentionTask) *RetentionWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionWorker{
		tasks:    tasks,
		interval: interval,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task; one failing table does not stop the rest.
func (w *RetentionWorker) RunOnce(ctx context.Context) map[string]int64 {
	deleted := make(map[string]int64, len(w.tasks))
	for _, task := range w.tasks {
		if task.MaxAge <= 0 {
			continue
		}
		n, err := task.Delete(ctx, w.now().Add(-task.MaxAge))
		if err != nil {
			w.logger.Error(err, "Retention cleanup failed", "table", task.Table)
			continue
		}
		deleted[task.Table] = n
		w.metrics.RetentionDeleted.WithLabelValues(task.Table).Add(float64(n))
		if n > 0 {
			w.logger.Info("Retention cleanup", "table", task.Table, "deleted", n)
		}
	}
	return deleted
}
