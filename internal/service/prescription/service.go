package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/event"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/pkg/errors"
)

type Service struct {
	repo            repository.PrescriptionRepository
	appointmentRepo repository.AppointmentRepository
	clinicRepo      repository.ClinicRepository
	patientRepo     repository.PatientRepository
	parties         *notification.Parties
	notifier        notification.Notifier
	auditor         *audit.Service
	now             func() time.Time
}

func NewService(
	repo repository.PrescriptionRepository,
	appointmentRepo repository.AppointmentRepository,
	clinicRepo repository.ClinicRepository,
	patientRepo repository.PatientRepository,
	notifier notification.Notifier,
	auditor *audit.Service,
) *Service {
	return &Service{
		repo:            repo,
		appointmentRepo: appointmentRepo,
		clinicRepo:      clinicRepo,
		patientRepo:     patientRepo,
		parties:         notification.NewParties(patientRepo, clinicRepo),
		notifier:        notifier,
		auditor:         auditor,
		now:             time.Now,
	}
}

// Create issues a prescription for an appointment the clinic is running or
// has completed.
func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	if !actor.Is(model.RoleClinic) {
		return nil, errors.Forbidden("only clinics can issue prescriptions")
	}
	if len(req.Medications) == 0 {
		return nil, errors.BadRequest("at least one medication is required", nil)
	}
	clinic, err := s.clinicRepo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Forbidden("no clinic registered")
		}
		return nil, errors.Internal(err)
	}
	apt, err := s.appointmentRepo.Get(ctx, req.AppointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("appointment", err)
		}
		return nil, errors.Internal(err)
	}
	if apt.ClinicID != clinic.ID {
		return nil, errors.Forbidden("appointment belongs to another clinic")
	}
	if apt.Status != model.AppointmentStatusInProgress && apt.Status != model.AppointmentStatusCompleted {
		return nil, errors.Unprocessable("prescriptions need an in-progress or completed appointment", nil)
	}

	p := &model.Prescription{
		Base:          model.Base{ID: uuid.New()},
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		DoctorID:      apt.DoctorID,
		ClinicID:      apt.ClinicID,
		Diagnosis:     req.Diagnosis,
		Medications:   model.Medications(req.Medications),
		Instructions:  req.Instructions,
		IssuedAt:      s.now().UTC(),
	}
	issued, err := event.Prescription(p)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.repo.Create(ctx, p, issued); err != nil {
		return nil, errors.Internal(err)
	}

	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionCreate, model.AuditEntityPrescription, p.ID, nil)
	if parties, err := s.parties.ForAppointment(ctx, apt); err != nil {
		log.Error().Err(err).Str("prescription_id", p.ID.String()).Msg("failed to resolve prescription recipient")
	} else {
		notification.Send(ctx, s.notifier, parties.ToPatient(model.Message{
			Type:     model.NotificationPrescriptionIssued,
			Subject:  "New prescription",
			Content:  "Your doctor at " + clinic.Name + " issued a prescription. Open the app to view it.",
			Metadata: model.JSONMap{"prescription_id": p.ID.String()},
		}))
	}
	return p, nil
}

// Get returns a prescription to its patient, the issuing clinic or an admin.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Prescription, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("prescription", err)
		}
		return nil, errors.Internal(err)
	}

	switch actor.Role {
	case model.RoleAdmin:
		return p, nil
	case model.RolePatient:
		patient, err := s.patientRepo.GetByUserID(ctx, actor.UserID)
		if err == nil && patient.ID == p.PatientID {
			return p, nil
		}
	case model.RoleClinic:
		clinic, err := s.clinicRepo.GetByUserID(ctx, actor.UserID)
		if err == nil && clinic.ID == p.ClinicID {
			return p, nil
		}
	}
	return nil, errors.Forbidden("not allowed to view this prescription")
}

// ListMine lists the calling patient's prescriptions, newest first.
func (s *Service) ListMine(ctx context.Context, actor model.Actor, page model.Page) ([]*model.Prescription, int64, error) {
	if !actor.Is(model.RolePatient) {
		return nil, 0, errors.Forbidden("only patients have prescriptions")
	}
	patient, err := s.patientRepo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, nil
		}
		return nil, 0, errors.Internal(err)
	}
	out, total, err := s.repo.ListByPatient(ctx, patient.ID, page)
	if err != nil {
		return nil, 0, errors.Internal(err)
	}
	return out, total, nil
}
