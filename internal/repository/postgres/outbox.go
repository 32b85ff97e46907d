package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return insertOutboxEvents(ctx, tx, []*model.OutboxEvent{event})
	})
}

func (r *outboxRepository) ProcessPending(ctx context.Context, limit int, handle func(ctx context.Context, event *model.OutboxEvent) model.OutboxOutcome) (int, error) {
	var handled int
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var events []*model.OutboxEvent
		err := tx.SelectContext(ctx, &events, `
			SELECT id, event_type, payload, status, error_message, created_at,
				   processed_at, updated_at, retry_count, retry_at
			FROM outbox_events
			WHERE status IN ('pending', 'retry')
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, event := range events {
			outcome := handle(ctx, event)
			retries := event.RetryCount
			if outcome.Status != model.OutboxStatusProcessed {
				retries++
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE outbox_events
				SET status = $1,
					error_message = $2,
					retry_at = $3,
					retry_count = $4,
					processed_at = CASE WHEN $1 = 'processed' THEN NOW() ELSE processed_at END,
					updated_at = NOW()
				WHERE id = $5
			`, outcome.Status, outcome.Error, outcome.RetryAt, retries, event.ID)
			if err != nil {
				return fmt.Errorf("failed to update event status: %w", err)
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
