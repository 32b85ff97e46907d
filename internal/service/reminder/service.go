package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/metrics"
)

const defaultBatchSize = 100

type Service struct {
	repo         repository.ReminderRepository
	appointments repository.AppointmentRepository
	parties      *notification.Parties
	notifier     notification.Notifier
	metrics      *metrics.Metrics
	batchSize    int
	loc          *time.Location
	now          func() time.Time
}

func NewService(
	repo repository.ReminderRepository,
	appointments repository.AppointmentRepository,
	parties *notification.Parties,
	notifier notification.Notifier,
	m *metrics.Metrics,
	batchSize int,
	loc *time.Location,
) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:         repo,
		appointments: appointments,
		parties:      parties,
		notifier:     notifier,
		metrics:      m,
		batchSize:    batchSize,
		loc:          loc,
		now:          time.Now,
	}
}

// Plan returns the reminders due for an appointment starting at start,
// leaving out offsets that are already behind now.
func Plan(start, now time.Time) []*model.Reminder {
	var out []*model.Reminder
	for _, off := range model.ReminderOffsets {
		at := start.Add(-off.Before)
		if !at.After(now) {
			continue
		}
		out = append(out, &model.Reminder{
			ID:       uuid.New(),
			RemindAt: at.UTC(),
			Offset:   off.Label,
			Status:   model.ReminderStatusScheduled,
		})
	}
	return out
}

// Schedule replaces the appointment's pending reminders.
func (s *Service) Schedule(ctx context.Context, apt *model.Appointment) error {
	if err := s.repo.Replace(ctx, apt.ID, Plan(apt.StartTime, s.now())); err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}
	return nil
}

func (s *Service) Cancel(ctx context.Context, appointmentID uuid.UUID) error {
	if err := s.repo.CancelForAppointment(ctx, appointmentID); err != nil {
		return fmt.Errorf("failed to cancel reminders: %w", err)
	}
	return nil
}

// DispatchDue sends every reminder whose time has come. Reminders of
// appointments that are no longer confirmed, or already started, are
// cancelled instead.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	return s.repo.ProcessDue(ctx, s.now().UTC(), s.batchSize, s.dispatch)
}

func (s *Service) dispatch(ctx context.Context, r *model.Reminder) model.ReminderStatus {
	status := s.handle(ctx, r)
	if s.metrics != nil {
		s.metrics.RemindersDispatched.WithLabelValues(string(status)).Inc()
	}
	return status
}

func (s *Service) handle(ctx context.Context, r *model.Reminder) model.ReminderStatus {
	apt, err := s.appointments.Get(ctx, r.AppointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.ReminderStatusCancelled
		}
		log.Error().Err(err).Str("reminder_id", r.ID.String()).Msg("failed to load appointment for reminder")
		return model.ReminderStatusScheduled
	}
	if apt.Status != model.AppointmentStatusConfirmed || !apt.StartTime.After(s.now()) {
		return model.ReminderStatusCancelled
	}

	parties, err := s.parties.ForAppointment(ctx, apt)
	if err != nil {
		log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to resolve reminder recipient")
		return model.ReminderStatusScheduled
	}

	when := apt.StartTime.In(s.loc).Format("Mon, Jan 2 2006 at 3:04 PM")
	msg := parties.ToPatient(model.Message{
		Type:    model.NotificationAppointmentReminder,
		Subject: "Appointment reminder",
		Content: fmt.Sprintf("Your appointment at %s is on %s.", parties.Clinic.Name, when),
		Metadata: model.JSONMap{
			"appointment_id": apt.ID.String(),
			"offset":         r.Offset,
		},
	})
	if err := s.notifier.Notify(ctx, msg); err != nil {
		log.Error().Err(err).Str("reminder_id", r.ID.String()).Msg("failed to send reminder")
		return model.ReminderStatusScheduled
	}
	return model.ReminderStatusSent
}
