package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

const doctorColumns = `
	id, clinic_id, user_id, full_name, specialization, license_number, email,
	phone, consultation_fee, currency, slot_duration_minutes, work_start,
	work_end, work_days, status, created_at, updated_at, deleted_at`

func (r *doctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	query := `
		INSERT INTO doctors (
			id, clinic_id, user_id, full_name, specialization, license_number,
			email, phone, consultation_fee, currency, slot_duration_minutes,
			work_start, work_end, work_days, status, created_at, updated_at
		) VALUES (
			:id, :clinic_id, :user_id, :full_name, :specialization, :license_number,
			:email, :phone, :consultation_fee, :currency, :slot_duration_minutes,
			:work_start, :work_end, :work_days, :status, :created_at, :updated_at
		)
	`

	if doctor.ID == uuid.Nil {
		doctor.ID = uuid.New()
	}
	doctor.CreatedAt = time.Now().UTC()
	doctor.UpdatedAt = doctor.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, doctor); err != nil {
		return conflict(err, "create doctor")
	}
	return nil
}

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var doctor model.Doctor
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &doctor, query, id); err != nil {
		return nil, notFound(err, "doctor")
	}
	return &doctor, nil
}

func (r *doctorRepository) Update(ctx context.Context, doctor *model.Doctor) error {
	query := `
		UPDATE doctors SET
			full_name = :full_name, specialization = :specialization,
			license_number = :license_number, email = :email, phone = :phone,
			consultation_fee = :consultation_fee,
			slot_duration_minutes = :slot_duration_minutes,
			work_start = :work_start, work_end = :work_end,
			work_days = :work_days, status = :status, updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL
	`

	doctor.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, doctor)
	if err != nil {
		return conflict(err, "update doctor")
	}
	return expectOne(res, "doctor")
}

func (r *doctorRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID, activeOnly bool) ([]*model.Doctor, error) {
	var w where
	w.raw("deleted_at IS NULL")
	w.add("clinic_id = ?", clinicID)
	if activeOnly {
		w.add("status = ?", model.DoctorStatusActive)
	}

	var doctors []*model.Doctor
	query := `SELECT ` + doctorColumns + ` FROM doctors` + w.String() + ` ORDER BY full_name ASC`
	if err := r.db.SelectContext(ctx, &doctors, query, w.args...); err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}
