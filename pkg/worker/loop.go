package worker

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/igabaycare/care-api/pkg/logger"
)

// Job is one pass of a periodic task. It returns how many items it handled.
type Job func(ctx context.Context) (int, error)

// Loop runs job every interval until ctx is done. Errors are logged and
// reported to Sentry; the loop keeps going. A non-positive interval is
// logged and the job never runs.
func Loop(ctx context.Context, name string, interval time.Duration, log *logger.Logger, job Job) {
	log = log.With("job", name)
	if interval <= 0 {
		log.Error(nil, "Job not started, interval must be positive", "interval", interval.String())
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Starting job", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping job")
			return
		case <-ticker.C:
			n, err := job(ctx)
			if err != nil {
				log.Error(err, "Job failed")
				sentry.CaptureException(err)
				continue
			}
			if n > 0 {
				log.Debug("Job handled items", "count", n)
			}
		}
	}
}
