package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/igabaycare/care-api/internal/repository"
)

type webhookEventRepository struct {
	BaseRepository
}

func NewWebhookEventRepository(base BaseRepository) repository.WebhookEventRepository {
	return &webhookEventRepository{base}
}

func (r *webhookEventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE received_at < $1 AND processed_at IS NOT NULL`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete webhook events: %w", err)
	}
	return result.RowsAffected()
}
