package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/pkg/errors"
)

type Service struct {
	repo            repository.PatientRepository
	clinicRepo      repository.ClinicRepository
	appointmentRepo repository.AppointmentRepository
	auditor         *audit.Service
}

func NewService(repo repository.PatientRepository, clinicRepo repository.ClinicRepository,
	appointmentRepo repository.AppointmentRepository, auditor *audit.Service) *Service {
	return &Service{
		repo:            repo,
		clinicRepo:      clinicRepo,
		appointmentRepo: appointmentRepo,
		auditor:         auditor,
	}
}

// Upsert creates or replaces the caller's own profile.
func (s *Service) Upsert(ctx context.Context, actor model.Actor, req *model.UpsertPatientRequest) (*model.Patient, error) {
	if !actor.Is(model.RolePatient) {
		return nil, errors.Forbidden("only patients have a patient profile")
	}

	action := model.AuditActionUpdate
	if _, err := s.repo.GetByUserID(ctx, actor.UserID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Internal(err)
		}
		action = model.AuditActionCreate
	}

	patient := &model.Patient{
		UserID:                actor.UserID,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		Email:                 actor.Email,
		Phone:                 req.Phone,
		DateOfBirth:           req.DateOfBirth,
		Gender:                req.Gender,
		Address:               req.Address,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		BloodType:             req.BloodType,
		Allergies:             req.Allergies,
	}
	if patient.Allergies == nil {
		patient.Allergies = []string{}
	}
	if err := s.repo.Upsert(ctx, patient); err != nil {
		return nil, errors.Internal(err)
	}

	_ = s.auditor.Log(ctx, actor.UserID, action, model.AuditEntityPatient, patient.ID, nil)
	return patient, nil
}

func (s *Service) Me(ctx context.Context, actor model.Actor) (*model.Patient, error) {
	patient, err := s.repo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("patient profile", err)
		}
		return nil, errors.Internal(err)
	}
	return patient, nil
}

// Get returns a profile to its owner, to admins, and to clinics the patient
// has booked with.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("patient", err)
		}
		return nil, errors.Internal(err)
	}

	switch actor.Role {
	case model.RoleAdmin:
		return patient, nil
	case model.RolePatient:
		if patient.UserID == actor.UserID {
			return patient, nil
		}
	case model.RoleClinic:
		clinic, err := s.clinicRepo.GetByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				break
			}
			return nil, errors.Internal(err)
		}
		ok, err := s.appointmentRepo.HasPatientAtClinic(ctx, patient.ID, clinic.ID)
		if err != nil {
			return nil, errors.Internal(err)
		}
		if ok {
			return patient, nil
		}
	}
	return nil, errors.Forbidden("not allowed to view this patient")
}
