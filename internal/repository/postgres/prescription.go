package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/pkg/security"
)

// prescriptionRepository stores diagnosis and instructions sealed when a
// field cipher is configured.
type prescriptionRepository struct {
	BaseRepository
	cipher *security.FieldCipher
}

func NewPrescriptionRepository(base BaseRepository, cipher *security.FieldCipher) repository.PrescriptionRepository {
	return &prescriptionRepository{BaseRepository: base, cipher: cipher}
}

func (r *prescriptionRepository) seal(p *model.Prescription) (*model.Prescription, error) {
	row := *p
	var err error
	if row.Diagnosis, err = r.cipher.Seal(p.Diagnosis); err != nil {
		return nil, fmt.Errorf("failed to seal diagnosis: %w", err)
	}
	if row.Instructions, err = r.cipher.Seal(p.Instructions); err != nil {
		return nil, fmt.Errorf("failed to seal instructions: %w", err)
	}
	return &row, nil
}

func (r *prescriptionRepository) open(p *model.Prescription) error {
	var err error
	if p.Diagnosis, err = r.cipher.Open(p.Diagnosis); err != nil {
		return fmt.Errorf("failed to open prescription %s: %w", p.ID, err)
	}
	if p.Instructions, err = r.cipher.Open(p.Instructions); err != nil {
		return fmt.Errorf("failed to open prescription %s: %w", p.ID, err)
	}
	return nil
}

const prescriptionColumns = `
	id, appointment_id, patient_id, doctor_id, clinic_id, diagnosis, medications,
	instructions, issued_at, created_at, updated_at, deleted_at`

func (r *prescriptionRepository) Create(ctx context.Context, p *model.Prescription, events ...*model.OutboxEvent) error {
	query := `
		INSERT INTO prescriptions (
			id, appointment_id, patient_id, doctor_id, clinic_id, diagnosis,
			medications, instructions, issued_at, created_at, updated_at
		) VALUES (
			:id, :appointment_id, :patient_id, :doctor_id, :clinic_id, :diagnosis,
			:medications, :instructions, :issued_at, :created_at, :updated_at
		)
	`

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	if p.IssuedAt.IsZero() {
		p.IssuedAt = p.CreatedAt
	}

	row, err := r.seal(p)
	if err != nil {
		return err
	}
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return conflict(err, "create prescription")
		}
		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *prescriptionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error) {
	var p model.Prescription
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "prescription")
	}
	if err := r.open(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, page model.Page) ([]*model.Prescription, int64, error) {
	var w where
	w.raw("deleted_at IS NULL")
	w.add("patient_id = ?", patientID)

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM prescriptions`+w.String(), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count prescriptions: %w", err)
	}

	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions` + w.String() + ` ORDER BY issued_at DESC`
	query += w.page(page)

	var prescriptions []*model.Prescription
	if err := r.db.SelectContext(ctx, &prescriptions, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list prescriptions: %w", err)
	}
	for _, p := range prescriptions {
		if err := r.open(p); err != nil {
			return nil, 0, err
		}
	}
	return prescriptions, total, nil
}
