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

type clinicRepository struct {
	BaseRepository
}

func NewClinicRepository(base BaseRepository) repository.ClinicRepository {
	return &clinicRepository{base}
}

const clinicColumns = `
	id, user_id, name, email, phone, website, address, city, province, zip_code,
	license_number, accreditation, tax_id, year_established, number_of_doctors,
	number_of_staff, specialties, services, description, status, rejection_reason,
	risk_score, risk_level, risk_flags, account_status, average_rating,
	review_count, created_at, updated_at, deleted_at`

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO clinics (
			id, user_id, name, email, phone, website, address, city, province,
			zip_code, license_number, accreditation, tax_id, year_established,
			number_of_doctors, number_of_staff, specialties, services, description,
			status, risk_score, risk_level, risk_flags, account_status,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :name, :email, :phone, :website, :address, :city, :province,
			:zip_code, :license_number, :accreditation, :tax_id, :year_established,
			:number_of_doctors, :number_of_staff, :specialties, :services, :description,
			:status, :risk_score, :risk_level, :risk_flags, :account_status,
			:created_at, :updated_at
		)
	`

	if clinic.ID == uuid.Nil {
		clinic.ID = uuid.New()
	}
	clinic.CreatedAt = time.Now().UTC()
	clinic.UpdatedAt = clinic.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, clinic); err != nil {
			return conflict(err, "create clinic")
		}
		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *clinicRepository) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	var clinic model.Clinic
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &clinic, query, id); err != nil {
		return nil, notFound(err, "clinic")
	}
	return &clinic, nil
}

func (r *clinicRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Clinic, error) {
	var clinic model.Clinic
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE user_id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &clinic, query, userID); err != nil {
		return nil, notFound(err, "clinic")
	}
	return &clinic, nil
}

func (r *clinicRepository) Update(ctx context.Context, clinic *model.Clinic) error {
	query := `
		UPDATE clinics SET
			name = :name, email = :email, phone = :phone, website = :website,
			address = :address, city = :city, province = :province,
			zip_code = :zip_code, license_number = :license_number,
			accreditation = :accreditation, tax_id = :tax_id,
			year_established = :year_established,
			number_of_doctors = :number_of_doctors,
			number_of_staff = :number_of_staff, specialties = :specialties,
			services = :services, description = :description,
			risk_score = :risk_score, risk_level = :risk_level,
			risk_flags = :risk_flags, account_status = :account_status,
			updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL
	`

	clinic.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, clinic)
	if err != nil {
		return conflict(err, "update clinic")
	}
	return expectOne(res, "clinic")
}

func (r *clinicRepository) UpdateStatus(ctx context.Context, clinic *model.Clinic, from model.ClinicStatus, events ...*model.OutboxEvent) error {
	query := `
		UPDATE clinics
		SET status = $1, rejection_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND deleted_at IS NULL
	`

	clinic.UpdatedAt = time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			clinic.Status, clinic.RejectionReason, clinic.UpdatedAt, clinic.ID, from)
		if err != nil {
			return fmt.Errorf("failed to update clinic status: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("clinic status changed concurrently: %w", repository.ErrConflict)
		}
		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *clinicRepository) List(ctx context.Context, filter model.ClinicFilter, page model.Page) ([]*model.Clinic, int64, error) {
	var w where
	w.raw("deleted_at IS NULL")
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Query != "" {
		w.add("(name ILIKE ? OR description ILIKE ?)", "%"+filter.Query+"%")
	}
	if filter.City != "" {
		w.add("city ILIKE ?", filter.City)
	}
	if filter.Specialty != "" {
		w.add("? = ANY(specialties)", filter.Specialty)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM clinics`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count clinics: %w", err)
	}

	query := `SELECT ` + clinicColumns + ` FROM clinics` + w.String() +
		` ORDER BY average_rating DESC, name ASC`
	query += w.page(page)

	var clinics []*model.Clinic
	if err := r.db.SelectContext(ctx, &clinics, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list clinics: %w", err)
	}
	return clinics, total, nil
}
