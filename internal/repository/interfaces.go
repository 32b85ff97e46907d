package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("record already exists or changed concurrently")
	ErrSlotTaken = errors.New("time slot already booked")
)

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	PatientRepository interface {
		// Upsert creates or replaces the profile owned by patient.UserID.
		Upsert(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Patient, error)
	}

	ClinicRepository interface {
		Create(ctx context.Context, clinic *model.Clinic, events ...*model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
		GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Clinic, error)
		Update(ctx context.Context, clinic *model.Clinic) error
		// UpdateStatus moves the clinic out of from. ErrConflict when the
		// stored status is no longer from.
		UpdateStatus(ctx context.Context, clinic *model.Clinic, from model.ClinicStatus, events ...*model.OutboxEvent) error
		List(ctx context.Context, filter model.ClinicFilter, page model.Page) ([]*model.Clinic, int64, error)
	}

	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.Doctor) error
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		Update(ctx context.Context, doctor *model.Doctor) error
		ListByClinic(ctx context.Context, clinicID uuid.UUID, activeOnly bool) ([]*model.Doctor, error)
	}

	AppointmentRepository interface {
		// CreateIfSlotFree inserts the appointment and its events only if the
		// doctor has no overlapping appointment. ErrSlotTaken otherwise.
		CreateIfSlotFree(ctx context.Context, apt *model.Appointment, events ...*model.OutboxEvent) error
		// RescheduleIfSlotFree moves the appointment to its new times under
		// the same doctor lock, ignoring the appointment itself.
		RescheduleIfSlotFree(ctx context.Context, apt *model.Appointment, events ...*model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filter model.AppointmentFilter, page model.Page) ([]*model.Appointment, int64, error)
		// ListBlocking returns the doctor's slot-occupying appointments in [from, to).
		ListBlocking(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*model.Appointment, error)
		// UpdateStatus persists status and payment fields when the stored
		// status and payment status still equal from and fromPayment.
		// ErrConflict otherwise.
		UpdateStatus(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus, fromPayment model.PaymentStatus, events ...*model.OutboxEvent) error
		HasPatientAtClinic(ctx context.Context, patientID, clinicID uuid.UUID) (bool, error)
	}

	TransactionRepository interface {
		Create(ctx context.Context, txn *model.Transaction) error
		Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
		CountByAppointment(ctx context.Context, appointmentID uuid.UUID) (int, error)
		// MarkStarted stores the provider handles and moves the appointment
		// payment to pending. A transaction already settled by a
		// notification keeps its status and txn.Status is refreshed.
		MarkStarted(ctx context.Context, txn *model.Transaction) error
		MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
		// FindByReference returns the newest transaction carrying ref as its
		// merchant, provider or payment reference.
		FindByReference(ctx context.Context, ref string) (*model.Transaction, error)
		// ApplyWebhookEvent records the delivery and, unless it was seen
		// before, locks the referenced transaction and appointment and
		// persists whatever fn decides. txn and apt are nil when the
		// reference is unknown.
		ApplyWebhookEvent(ctx context.Context, record *model.WebhookEvent, fn WebhookApplyFunc) (duplicate bool, effect *model.PaymentEffect, err error)
	}

	WebhookApplyFunc func(txn *model.Transaction, apt *model.Appointment) (*model.PaymentEffect, error)

	WebhookEventRepository interface {
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	NotificationRepository interface {
		CreateBatch(ctx context.Context, notifications []*model.Notification) error
		UpdateDelivery(ctx context.Context, n *model.Notification) error
		// ClaimDueRetries leases due retrying notifications so that
		// concurrent workers never pick the same row.
		ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*model.Notification, error)
		ListInbox(ctx context.Context, userID uuid.UUID, unreadOnly bool, page model.Page) ([]*model.Notification, int64, error)
		MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error
		MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
		CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	}

	ReminderRepository interface {
		// Replace cancels the appointment's scheduled reminders and stores
		// the given ones.
		Replace(ctx context.Context, appointmentID uuid.UUID, reminders []*model.Reminder) error
		CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) error
		// ProcessDue locks up to limit due reminders (SKIP LOCKED) and stores
		// the status handle returns for each.
		ProcessDue(ctx context.Context, now time.Time, limit int, handle func(ctx context.Context, r *model.Reminder) model.ReminderStatus) (int, error)
	}

	ReviewRepository interface {
		// Create stores the review and refreshes the clinic rating.
		Create(ctx context.Context, review *model.Review) error
		ListByClinic(ctx context.Context, clinicID uuid.UUID, page model.Page) ([]*model.Review, int64, error)
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, p *model.Prescription, events ...*model.OutboxEvent) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID, page model.Page) ([]*model.Prescription, int64, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ProcessPending locks up to limit due events and stores the
		// outcome handle returns for each.
		ProcessPending(ctx context.Context, limit int, handle func(ctx context.Context, event *model.OutboxEvent) model.OutboxOutcome) (int, error)
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter model.AuditFilter, page model.Page) ([]*model.AuditLog, int64, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
