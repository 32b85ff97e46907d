package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/igabaycare/care-api/pkg/logger"
	"github.com/igabaycare/care-api/pkg/metrics"
)

func TestRetentionWorkerRunOnce(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var cutoff time.Time

	w := NewRetentionWorker(time.Hour, logger.Nop(), metrics.NewMetrics("test", prometheus.NewRegistry()),
		RetentionTask{Table: "webhook_events", MaxAge: 24 * time.Hour, Delete: func(_ context.Context, before time.Time) (int64, error) {
			cutoff = before
			return 3, nil
		}},
		RetentionTask{Table: "outbox_events", MaxAge: time.Hour, Delete: func(context.Context, time.Time) (int64, error) {
			return 0, errors.New("db down")
		}},
		RetentionTask{Table: "audit_logs", Delete: func(context.Context, time.Time) (int64, error) {
			t.Fatal("zero max age must be skipped")
			return 0, nil
		}},
	)
	w.now = func() time.Time { return fixed }

	deleted := w.RunOnce(context.Background())
	assert.Equal(t, map[string]int64{"webhook_events": 3}, deleted)
	assert.Equal(t, fixed.Add(-24*time.Hour), cutoff)
}
