package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

const patientColumns = `
	id, user_id, first_name, last_name, email, phone, date_of_birth, gender,
	address, emergency_contact_name, emergency_contact_phone, blood_type,
	allergies, created_at, updated_at, deleted_at`

func (r *patientRepository) Upsert(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, user_id, first_name, last_name, email, phone, date_of_birth,
			gender, address, emergency_contact_name, emergency_contact_phone,
			blood_type, allergies, created_at, updated_at
		) VALUES (
			:id, :user_id, :first_name, :last_name, :email, :phone, :date_of_birth,
			:gender, :address, :emergency_contact_name, :emergency_contact_phone,
			:blood_type, :allergies, :created_at, :updated_at
		)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			address = EXCLUDED.address,
			emergency_contact_name = EXCLUDED.emergency_contact_name,
			emergency_contact_phone = EXCLUDED.emergency_contact_phone,
			blood_type = EXCLUDED.blood_type,
			allergies = EXCLUDED.allergies,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	now := time.Now().UTC()
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
		patient.CreatedAt = now
	}
	patient.UpdatedAt = now

	rows, err := r.db.NamedQueryContext(ctx, query, patient)
	if err != nil {
		return conflict(err, "upsert patient")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&patient.ID, &patient.CreatedAt); err != nil {
			return conflict(err, "upsert patient")
		}
	}
	return rows.Err()
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		return nil, notFound(err, "patient")
	}
	return &patient, nil
}

func (r *patientRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	query := `SELECT ` + patientColumns + ` FROM patients WHERE user_id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &patient, query, userID); err != nil {
		return nil, notFound(err, "patient")
	}
	return &patient, nil
}
