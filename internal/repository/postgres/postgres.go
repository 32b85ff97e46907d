package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/pkg/security"
)

// Repositories bundles every postgres-backed repository over one pool.
type Repositories struct {
	Users         repository.UserRepository
	Patients      repository.PatientRepository
	Clinics       repository.ClinicRepository
	Doctors       repository.DoctorRepository
	Appointments  repository.AppointmentRepository
	Transactions  repository.TransactionRepository
	WebhookEvents repository.WebhookEventRepository
	Notifications repository.NotificationRepository
	Reminders     repository.ReminderRepository
	Reviews       repository.ReviewRepository
	Prescriptions repository.PrescriptionRepository
	Outbox        repository.OutboxRepository
	Audit         repository.AuditRepository
}

// NewRepositories wires every repository to db. A nil cipher stores
// prescription text as written.
func NewRepositories(db *sqlx.DB, cipher *security.FieldCipher) *Repositories {
	base := NewBaseRepository(db)
	return &Repositories{
		Users:         NewUserRepository(base),
		Patients:      NewPatientRepository(base),
		Clinics:       NewClinicRepository(base),
		Doctors:       NewDoctorRepository(base),
		Appointments:  NewAppointmentRepository(base),
		Transactions:  NewTransactionRepository(base),
		WebhookEvents: NewWebhookEventRepository(base),
		Notifications: NewNotificationRepository(base),
		Reminders:     NewReminderRepository(base),
		Reviews:       NewReviewRepository(base),
		Prescriptions: NewPrescriptionRepository(base, cipher),
		Outbox:        NewOutboxRepository(base),
		Audit:         NewAuditRepository(base),
	}
}
