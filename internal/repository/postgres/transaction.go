package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

type transactionRepository struct {
	BaseRepository
}

func NewTransactionRepository(base BaseRepository) repository.TransactionRepository {
	return &transactionRepository{base}
}

const transactionColumns = `
	id, appointment_id, patient_id, clinic_id, provider, provider_reference,
	payment_reference, merchant_reference, amount, currency, method, status,
	failure_reason, checkout_url, provider_event_at, created_at, updated_at,
	deleted_at`

func (r *transactionRepository) Create(ctx context.Context, txn *model.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, appointment_id, patient_id, clinic_id, provider, merchant_reference,
			amount, currency, method, status, created_at, updated_at
		) VALUES (
			:id, :appointment_id, :patient_id, :clinic_id, :provider, :merchant_reference,
			:amount, :currency, :method, :status, :created_at, :updated_at
		)
	`

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.CreatedAt = time.Now().UTC()
	txn.UpdatedAt = txn.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, txn); err != nil {
		return conflict(err, "create transaction")
	}
	return nil
}

func (r *transactionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var txn model.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &txn, query, id); err != nil {
		return nil, notFound(err, "transaction")
	}
	return &txn, nil
}

func (r *transactionRepository) CountByAppointment(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM transactions WHERE appointment_id = $1`, appointmentID); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

func (r *transactionRepository) MarkStarted(ctx context.Context, txn *model.Transaction) error {
	txn.UpdatedAt = time.Now().UTC()
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var status model.TransactionStatus
		err := tx.GetContext(ctx, &status, `
			UPDATE transactions
			SET provider_reference = COALESCE(provider_reference, $1),
				checkout_url = $2, method = $3, updated_at = $4
			WHERE id = $5
			RETURNING status
		`, txn.ProviderReference, txn.CheckoutURL, txn.Method, txn.UpdatedAt, txn.ID)
		if err != nil {
			return notFound(err, "transaction")
		}
		txn.Status = status
		// a notification got here first and already settled the payment
		if status != model.TransactionStatusPending {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE appointments
			SET payment_status = $1, updated_at = $2
			WHERE id = $3 AND payment_status IN ('unpaid', 'failed')
		`, model.PaymentStatusPending, txn.UpdatedAt, txn.AppointmentID)
		if err != nil {
			return fmt.Errorf("failed to update appointment payment status: %w", err)
		}
		return nil
	})
}

func (r *transactionRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status IN ('pending', 'authorized')
	`, model.TransactionStatusFailed, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	return expectOne(res, "transaction")
}

func (r *transactionRepository) FindByReference(ctx context.Context, ref string) (*model.Transaction, error) {
	var txn model.Transaction
	err := r.db.GetContext(ctx, &txn, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE merchant_reference = $1 OR provider_reference = $1 OR payment_reference = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, ref)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	return &txn, nil
}

func (r *transactionRepository) ApplyWebhookEvent(ctx context.Context, record *model.WebhookEvent, fn repository.WebhookApplyFunc) (bool, *model.PaymentEffect, error) {
	var (
		duplicate bool
		effect    *model.PaymentEffect
	)

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO webhook_events (
				id, provider, event_id, event_type, reference, payload,
				occurred_at, received_at
			) VALUES (
				:id, :provider, :event_id, :event_type, :reference, :payload,
				:occurred_at, :received_at
			)
			ON CONFLICT (provider, event_id) DO NOTHING
		`, record)
		if err != nil {
			return fmt.Errorf("failed to record webhook event: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if inserted == 0 {
			duplicate = true
			return nil
		}

		txn, apt, err := lockPayment(ctx, tx, record.Reference)
		if err != nil {
			return err
		}

		effect, err = fn(txn, apt)
		if err != nil {
			return err
		}
		if err := persistEffect(ctx, tx, effect); err != nil {
			return err
		}

		processedAt := time.Now().UTC()
		record.ProcessedAt = &processedAt
		record.Outcome = &effect.Outcome
		_, err = tx.ExecContext(ctx,
			`UPDATE webhook_events SET processed_at = $1, outcome = $2 WHERE id = $3`,
			processedAt, effect.Outcome, record.ID)
		if err != nil {
			return fmt.Errorf("failed to store webhook outcome: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return duplicate, effect, nil
}

// lockPayment locks the transaction matching ref and its appointment.
// Both are nil when no transaction carries ref.
func lockPayment(ctx context.Context, tx *sqlx.Tx, ref string) (*model.Transaction, *model.Appointment, error) {
	var txn model.Transaction
	err := tx.GetContext(ctx, &txn, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE merchant_reference = $1 OR provider_reference = $1 OR payment_reference = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	var apt model.Appointment
	err = tx.GetContext(ctx, &apt,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, txn.AppointmentID)
	if err != nil {
		return nil, nil, notFound(err, "appointment")
	}
	return &txn, &apt, nil
}

func persistEffect(ctx context.Context, tx *sqlx.Tx, effect *model.PaymentEffect) error {
	now := time.Now().UTC()
	if t := effect.Transaction; t != nil {
		t.UpdatedAt = now
		_, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $1, provider_reference = $2, payment_reference = $3,
				failure_reason = $4, provider_event_at = $5, updated_at = $6
			WHERE id = $7
		`, t.Status, t.ProviderReference, t.PaymentReference, t.FailureReason,
			t.ProviderEventAt, t.UpdatedAt, t.ID)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
	}
	if a := effect.Appointment; a != nil {
		a.UpdatedAt = now
		_, err := tx.ExecContext(ctx, `
			UPDATE appointments SET status = $1, payment_status = $2, updated_at = $3
			WHERE id = $4
		`, a.Status, a.PaymentStatus, a.UpdatedAt, a.ID)
		if err != nil {
			return fmt.Errorf("failed to update appointment: %w", err)
		}
	}
	return insertOutboxEvents(ctx, tx, effect.Events)
}
