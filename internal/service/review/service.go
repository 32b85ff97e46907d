package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/event"
	"github.com/igabaycare/care-api/pkg/errors"
)

type Service struct {
	repo            repository.ReviewRepository
	appointmentRepo repository.AppointmentRepository
	patientRepo     repository.PatientRepository
	events          *event.Service
}

func NewService(
	repo repository.ReviewRepository,
	appointmentRepo repository.AppointmentRepository,
	patientRepo repository.PatientRepository,
	events *event.Service,
) *Service {
	return &Service{
		repo:            repo,
		appointmentRepo: appointmentRepo,
		patientRepo:     patientRepo,
		events:          events,
	}
}

// Create stores the patient's review of a completed appointment. Each
// appointment can be reviewed once.
func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateReviewRequest) (*model.Review, error) {
	if !actor.Is(model.RolePatient) {
		return nil, errors.Forbidden("only patients can write reviews")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, errors.BadRequest("rating must be between 1 and 5", nil)
	}
	patient, err := s.patientRepo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Forbidden("no patient profile")
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
	if apt.PatientID != patient.ID {
		return nil, errors.Forbidden("not your appointment")
	}
	if apt.Status != model.AppointmentStatusCompleted {
		return nil, errors.Unprocessable("only completed appointments can be reviewed", nil)
	}

	rv := &model.Review{
		AppointmentID: apt.ID,
		PatientID:     patient.ID,
		ClinicID:      apt.ClinicID,
		DoctorID:      apt.DoctorID,
		Rating:        req.Rating,
		Comment:       req.Comment,
	}
	if err := s.repo.Create(ctx, rv); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("appointment already reviewed", err)
		}
		return nil, errors.Internal(err)
	}

	if err := s.events.Emit(ctx, model.EventReviewCreated, event.Review(rv)); err != nil {
		log.Error().Err(err).Str("review_id", rv.ID.String()).Msg("failed to emit review event")
	}
	return rv, nil
}

func (s *Service) ListByClinic(ctx context.Context, clinicID uuid.UUID, page model.Page) ([]*model.Review, int64, error) {
	reviews, total, err := s.repo.ListByClinic(ctx, clinicID, page)
	if err != nil {
		return nil, 0, errors.Internal(err)
	}
	return reviews, total, nil
}
