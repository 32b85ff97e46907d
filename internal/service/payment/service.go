package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/payment/adyen"
	"github.com/igabaycare/care-api/internal/payment/paymongo"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/internal/service/reminder"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/idempotency"
	"github.com/igabaycare/care-api/pkg/metrics"
)

// AdyenGateway is the part of the Adyen client checkout needs.
type AdyenGateway interface {
	CreateSession(ctx context.Context, amount adyen.Amount, reference, returnURL, shopperRef, shopperEmail string) (*adyen.Session, error)
	MakePayment(ctx context.Context, payload map[string]interface{}, amount adyen.Amount, reference, returnURL string) (map[string]interface{}, error)
	PaymentDetails(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)
}

// PayMongoGateway is the part of the PayMongo client checkout needs.
type PayMongoGateway interface {
	CreateGCashSource(ctx context.Context, amount int64, currency, reference, successURL, failedURL string) (*paymongo.Source, error)
	CreatePayment(ctx context.Context, sourceID string, amount int64, currency, description string) (*paymongo.Payment, error)
}

type Deps struct {
	Transactions     repository.TransactionRepository
	Appointments     repository.AppointmentRepository
	Patients         repository.PatientRepository
	Clinics          repository.ClinicRepository
	Adyen            AdyenGateway
	AdyenVerifier    *adyen.Verifier
	PayMongo         PayMongoGateway
	PayMongoVerifier *paymongo.Verifier
	Dedup            idempotency.Store
	DedupTTL         time.Duration
	Reminders        *reminder.Service
	Notifier         notification.Notifier
	Auditor          *audit.Service
	Metrics          *metrics.Metrics
}

type Service struct {
	txnRepo          repository.TransactionRepository
	appointmentRepo  repository.AppointmentRepository
	patientRepo      repository.PatientRepository
	clinicRepo       repository.ClinicRepository
	adyen            AdyenGateway
	adyenVerifier    *adyen.Verifier
	paymongo         PayMongoGateway
	paymongoVerifier *paymongo.Verifier
	dedup            idempotency.Store
	dedupTTL         time.Duration
	reminders        *reminder.Service
	parties          *notification.Parties
	notifier         notification.Notifier
	auditor          *audit.Service
	metrics          *metrics.Metrics
	now              func() time.Time
}

func NewService(d Deps) *Service {
	if d.DedupTTL <= 0 {
		d.DedupTTL = 24 * time.Hour
	}
	return &Service{
		txnRepo:          d.Transactions,
		appointmentRepo:  d.Appointments,
		patientRepo:      d.Patients,
		clinicRepo:       d.Clinics,
		adyen:            d.Adyen,
		adyenVerifier:    d.AdyenVerifier,
		paymongo:         d.PayMongo,
		paymongoVerifier: d.PayMongoVerifier,
		dedup:            d.Dedup,
		dedupTTL:         d.DedupTTL,
		reminders:        d.Reminders,
		parties:          notification.NewParties(d.Patients, d.Clinics),
		notifier:         d.Notifier,
		auditor:          d.Auditor,
		metrics:          d.Metrics,
		now:              time.Now,
	}
}

// MerchantReference builds IGC-<appointment id hex>-<attempt>. The whole id
// is kept since references are unique across all transactions.
func MerchantReference(appointmentID uuid.UUID, attempt int) string {
	return fmt.Sprintf("IGC-%s-%d", strings.ReplaceAll(appointmentID.String(), "-", ""), attempt)
}

// GetTransaction returns a transaction to its patient, its clinic or an
// admin.
func (s *Service) GetTransaction(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Transaction, error) {
	txn, err := s.txnRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("transaction", err)
		}
		return nil, errors.Internal(err)
	}

	switch actor.Role {
	case model.RoleAdmin:
		return txn, nil
	case model.RolePatient:
		p, err := s.patientRepo.GetByUserID(ctx, actor.UserID)
		if err == nil && p.ID == txn.PatientID {
			return txn, nil
		}
	case model.RoleClinic:
		c, err := s.clinicRepo.GetByUserID(ctx, actor.UserID)
		if err == nil && c.ID == txn.ClinicID {
			return txn, nil
		}
	}
	return nil, errors.Forbidden("not allowed to view this transaction")
}
