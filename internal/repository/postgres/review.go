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

type reviewRepository struct {
	BaseRepository
}

func NewReviewRepository(base BaseRepository) repository.ReviewRepository {
	return &reviewRepository{base}
}

const reviewColumns = `
	id, appointment_id, patient_id, clinic_id, doctor_id, rating, comment,
	created_at, updated_at, deleted_at`

func (r *reviewRepository) Create(ctx context.Context, review *model.Review) error {
	query := `
		INSERT INTO reviews (
			id, appointment_id, patient_id, clinic_id, doctor_id, rating, comment,
			created_at, updated_at
		) VALUES (
			:id, :appointment_id, :patient_id, :clinic_id, :doctor_id, :rating, :comment,
			:created_at, :updated_at
		)
	`

	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	review.CreatedAt = time.Now().UTC()
	review.UpdatedAt = review.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, review); err != nil {
			return conflict(err, "create review")
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE clinics c
			SET average_rating = s.avg, review_count = s.cnt, updated_at = $2
			FROM (
				SELECT COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS cnt
				FROM reviews WHERE clinic_id = $1 AND deleted_at IS NULL
			) s
			WHERE c.id = $1
		`, review.ClinicID, review.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to refresh clinic rating: %w", err)
		}
		return nil
	})
}

func (r *reviewRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID, page model.Page) ([]*model.Review, int64, error) {
	var w where
	w.raw("deleted_at IS NULL")
	w.add("clinic_id = ?", clinicID)

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reviews`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	query := `SELECT ` + reviewColumns + ` FROM reviews` + w.String() + ` ORDER BY created_at DESC`
	query += w.page(page)

	var reviews []*model.Review
	if err := r.db.SelectContext(ctx, &reviews, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, total, nil
}
