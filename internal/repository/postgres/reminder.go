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

type reminderRepository struct {
	BaseRepository
}

func NewReminderRepository(base BaseRepository) repository.ReminderRepository {
	return &reminderRepository{base}
}

const cancelReminders = `
	UPDATE reminders SET status = 'cancelled', updated_at = $1
	WHERE appointment_id = $2 AND status = 'scheduled'
`

func (r *reminderRepository) Replace(ctx context.Context, appointmentID uuid.UUID, reminders []*model.Reminder) error {
	query := `
		INSERT INTO reminders (
			id, appointment_id, remind_at, offset_label, status, created_at, updated_at
		) VALUES (:id, :appointment_id, :remind_at, :offset_label, :status, :created_at, :updated_at)
	`

	now := time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, cancelReminders, now, appointmentID); err != nil {
			return fmt.Errorf("failed to cancel reminders: %w", err)
		}
		for _, rem := range reminders {
			if rem.ID == uuid.Nil {
				rem.ID = uuid.New()
			}
			rem.AppointmentID = appointmentID
			rem.CreatedAt = now
			rem.UpdatedAt = now
			if _, err := tx.NamedExecContext(ctx, query, rem); err != nil {
				return fmt.Errorf("failed to create reminder: %w", err)
			}
		}
		return nil
	})
}

func (r *reminderRepository) CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, cancelReminders, time.Now().UTC(), appointmentID); err != nil {
		return fmt.Errorf("failed to cancel reminders: %w", err)
	}
	return nil
}

func (r *reminderRepository) ProcessDue(ctx context.Context, now time.Time, limit int, handle func(ctx context.Context, rem *model.Reminder) model.ReminderStatus) (int, error) {
	var handled int
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var due []*model.Reminder
		err := tx.SelectContext(ctx, &due, `
			SELECT id, appointment_id, remind_at, offset_label, status, sent_at,
				   created_at, updated_at
			FROM reminders
			WHERE status = 'scheduled' AND remind_at <= $1
			ORDER BY remind_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, now, limit)
		if err != nil {
			return fmt.Errorf("failed to get due reminders: %w", err)
		}

		for _, rem := range due {
			status := handle(ctx, rem)
			if status == model.ReminderStatusScheduled {
				continue
			}
			var sentAt *time.Time
			if status == model.ReminderStatusSent {
				sentAt = &now
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE reminders SET status = $1, sent_at = $2, updated_at = $3 WHERE id = $4`,
				status, sentAt, now, rem.ID)
			if err != nil {
				return fmt.Errorf("failed to update reminder: %w", err)
			}
			handled++
		}
		return nil
	})
	return handled, err
}
