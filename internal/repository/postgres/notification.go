package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

const notificationColumns = `
	id, user_id, channel, type, subject, content, recipient, status, read_at,
	retry_count, last_error, next_retry_at, sent_at, metadata, created_at,
	updated_at`

func (r *notificationRepository) CreateBatch(ctx context.Context, notifications []*model.Notification) error {
	query := `
		INSERT INTO notifications (
			id, user_id, channel, type, subject, content, recipient, status,
			retry_count, metadata, created_at, updated_at
		) VALUES (
			:id, :user_id, :channel, :type, :subject, :content, :recipient, :status,
			:retry_count, :metadata, :created_at, :updated_at
		)
	`

	now := time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, n := range notifications {
			if n.ID == uuid.Nil {
				n.ID = uuid.New()
			}
			n.CreatedAt = now
			n.UpdatedAt = now
			if _, err := tx.NamedExecContext(ctx, query, n); err != nil {
				return fmt.Errorf("failed to create notification: %w", err)
			}
		}
		return nil
	})
}

func (r *notificationRepository) UpdateDelivery(ctx context.Context, n *model.Notification) error {
	query := `
		UPDATE notifications
		SET status = :status, retry_count = :retry_count, last_error = :last_error,
			next_retry_at = :next_retry_at, sent_at = :sent_at, updated_at = :updated_at
		WHERE id = :id
	`

	n.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, n)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	return expectOne(res, "notification")
}

func (r *notificationRepository) ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*model.Notification, error) {
	query := `
		UPDATE notifications
		SET next_retry_at = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'retrying' AND next_retry_at <= $1
			ORDER BY next_retry_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationColumns

	var claimed []*model.Notification
	if err := r.db.SelectContext(ctx, &claimed, query, now, now.Add(lease), limit); err != nil {
		return nil, fmt.Errorf("failed to claim notification retries: %w", err)
	}
	return claimed, nil
}

func (r *notificationRepository) ListInbox(ctx context.Context, userID uuid.UUID, unreadOnly bool, page model.Page) ([]*model.Notification, int64, error) {
	var w where
	w.add("user_id = ?", userID)
	w.add("channel = ?", model.ChannelInApp)
	if unreadOnly {
		w.raw("read_at IS NULL")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications` + w.String() + ` ORDER BY created_at DESC`
	query += w.page(page)

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $1), updated_at = $1
		WHERE id = $2 AND user_id = $3 AND channel = 'in_app'
	`, at, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return expectOne(res, "notification")
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET read_at = $1, updated_at = $1
		WHERE user_id = $2 AND channel = 'in_app' AND read_at IS NULL
	`, at, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND channel = 'in_app' AND read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}
