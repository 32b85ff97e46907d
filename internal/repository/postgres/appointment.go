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

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

const appointmentColumns = `
	id, patient_id, clinic_id, doctor_id, start_time, end_time, type, reason,
	notes, status, payment_status, payment_method, fee_amount, currency,
	cancel_reason, cancelled_by, created_at, updated_at, deleted_at`

// lockDoctorSlot serialises bookings per doctor and reports whether
// [start, end) is free, ignoring exclude.
func lockDoctorSlot(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) error {
	var locked uuid.UUID
	if err := tx.GetContext(ctx, &locked,
		`SELECT id FROM doctors WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, doctorID); err != nil {
		return notFound(err, "doctor")
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			AND deleted_at IS NULL
			AND status NOT IN ('cancelled', 'no_show')
			AND start_time < $3 AND end_time > $2
			AND id <> $4
		)
	`
	var taken bool
	if err := tx.GetContext(ctx, &taken, query, doctorID, start, end, exclude); err != nil {
		return fmt.Errorf("failed to check conflicts: %w", err)
	}
	if taken {
		return repository.ErrSlotTaken
	}
	return nil
}

func (r *appointmentRepository) CreateIfSlotFree(ctx context.Context, apt *model.Appointment, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, clinic_id, doctor_id, start_time, end_time, type,
			reason, notes, status, payment_status, payment_method, fee_amount,
			currency, created_at, updated_at
		) VALUES (
			:id, :patient_id, :clinic_id, :doctor_id, :start_time, :end_time, :type,
			:reason, :notes, :status, :payment_status, :payment_method, :fee_amount,
			:currency, :created_at, :updated_at
		)
	`

	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	apt.CreatedAt = time.Now().UTC()
	apt.UpdatedAt = apt.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockDoctorSlot(ctx, tx, apt.DoctorID, apt.StartTime, apt.EndTime, apt.ID); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, query, apt); err != nil {
			return conflict(err, "create appointment")
		}
		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *appointmentRepository) RescheduleIfSlotFree(ctx context.Context, apt *model.Appointment, events ...*model.OutboxEvent) error {
	query := `
		UPDATE appointments
		SET start_time = $1, end_time = $2, updated_at = $3
		WHERE id = $4 AND status IN ('pending', 'confirmed') AND deleted_at IS NULL
	`

	apt.UpdatedAt = time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockDoctorSlot(ctx, tx, apt.DoctorID, apt.StartTime, apt.EndTime, apt.ID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, apt.StartTime, apt.EndTime, apt.UpdatedAt, apt.ID)
		if err != nil {
			return fmt.Errorf("failed to reschedule appointment: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("appointment can no longer be rescheduled: %w", repository.ErrConflict)
		}
		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var apt model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &apt, query, id); err != nil {
		return nil, notFound(err, "appointment")
	}
	return &apt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter, page model.Page) ([]*model.Appointment, int64, error) {
	var w where
	w.raw("deleted_at IS NULL")
	if filter.PatientID != nil {
		w.add("patient_id = ?", *filter.PatientID)
	}
	if filter.ClinicID != nil {
		w.add("clinic_id = ?", *filter.ClinicID)
	}
	if filter.DoctorID != nil {
		w.add("doctor_id = ?", *filter.DoctorID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.From != nil {
		w.add("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		w.add("start_time < ?", *filter.To)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM appointments`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count appointments: %w", err)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments` + w.String() + ` ORDER BY start_time ASC`
	query += w.page(page)

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) ListBlocking(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1
		AND deleted_at IS NULL
		AND status NOT IN ('cancelled', 'no_show')
		AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
	`

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, doctorID, from, to); err != nil {
		return nil, fmt.Errorf("failed to list doctor appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus, fromPayment model.PaymentStatus, events ...*model.OutboxEvent) error {
	query := `
		UPDATE appointments
		SET status = $1, payment_status = $2, notes = $3, cancel_reason = $4,
			cancelled_by = $5, updated_at = $6
		WHERE id = $7 AND status = $8 AND payment_status = $9 AND deleted_at IS NULL
	`

	apt.UpdatedAt = time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			apt.Status, apt.PaymentStatus, apt.Notes, apt.CancelReason,
			apt.CancelledBy, apt.UpdatedAt, apt.ID, from, fromPayment)
		if err != nil {
			return fmt.Errorf("failed to update appointment status: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("appointment changed concurrently: %w", repository.ErrConflict)
		}
		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *appointmentRepository) HasPatientAtClinic(ctx context.Context, patientID, clinicID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM appointments WHERE patient_id = $1 AND clinic_id = $2 AND deleted_at IS NULL)`
	if err := r.db.GetContext(ctx, &exists, query, patientID, clinicID); err != nil {
		return false, fmt.Errorf("failed to check patient clinic link: %w", err)
	}
	return exists, nil
}
