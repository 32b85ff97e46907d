package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/event"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/internal/service/reminder"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/metrics"
)

const (
	MinLeadTime       = time.Hour
	MaxAdvanceBooking = 90 * 24 * time.Hour
	MinDuration       = 15 * time.Minute
	MaxDuration       = 4 * time.Hour
	// PatientCancelCutoff is how long before the start a patient may still
	// cancel on their own.
	PatientCancelCutoff = 2 * time.Hour
)

type Service struct {
	repo        repository.AppointmentRepository
	clinicRepo  repository.ClinicRepository
	doctorRepo  repository.DoctorRepository
	patientRepo repository.PatientRepository
	reminders   *reminder.Service
	parties     *notification.Parties
	notifier    notification.Notifier
	auditor     *audit.Service
	metrics     *metrics.Metrics
	loc         *time.Location
	now         func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	clinicRepo repository.ClinicRepository,
	doctorRepo repository.DoctorRepository,
	patientRepo repository.PatientRepository,
	reminders *reminder.Service,
	notifier notification.Notifier,
	auditor *audit.Service,
	m *metrics.Metrics,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:        repo,
		clinicRepo:  clinicRepo,
		doctorRepo:  doctorRepo,
		patientRepo: patientRepo,
		reminders:   reminders,
		parties:     notification.NewParties(patientRepo, clinicRepo),
		notifier:    notifier,
		auditor:     auditor,
		metrics:     m,
		loc:         loc,
		now:         time.Now,
	}
}

// checkStart enforces that bookings are never in the past and fall inside
// the booking window.
func (s *Service) checkStart(start time.Time) error {
	now := s.now()
	switch {
	case !start.After(now):
		return errors.BadRequest("appointment start time is in the past", nil)
	case start.Before(now.Add(MinLeadTime)):
		return errors.BadRequest("appointments must be booked at least 1 hour ahead", nil)
	case start.After(now.Add(MaxAdvanceBooking)):
		return errors.BadRequest("appointments can be booked at most 90 days ahead", nil)
	}
	return nil
}

func checkDuration(start, end time.Time) error {
	d := end.Sub(start)
	if d < MinDuration || d > MaxDuration {
		return errors.BadRequest("appointment duration must be between 15 minutes and 4 hours", nil)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if !actor.Is(model.RolePatient) {
		return nil, errors.Forbidden("only patients can book appointments")
	}
	patient, err := s.patientRepo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Unprocessable("complete your patient profile before booking", err)
		}
		return nil, errors.Internal(err)
	}

	if err := s.checkStart(req.StartTime); err != nil {
		s.observeBooking("rejected")
		return nil, err
	}
	if req.EndTime != nil {
		if err := checkDuration(req.StartTime, *req.EndTime); err != nil {
			s.observeBooking("rejected")
			return nil, err
		}
	}

	clinic, doctor, err := s.bookable(ctx, req.ClinicID, req.DoctorID)
	if err != nil {
		s.observeBooking("rejected")
		return nil, err
	}

	end := req.StartTime.Add(doctor.SlotDuration())
	if req.EndTime != nil {
		end = *req.EndTime
	} else if err := checkDuration(req.StartTime, end); err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = model.PaymentMethodOnline
	}
	apt := &model.Appointment{
		Base:          model.Base{ID: uuid.New()},
		PatientID:     patient.ID,
		ClinicID:      clinic.ID,
		DoctorID:      doctor.ID,
		StartTime:     req.StartTime.UTC(),
		EndTime:       end.UTC(),
		Type:          req.Type,
		Reason:        req.Reason,
		Status:        model.AppointmentStatusPending,
		PaymentMethod: method,
		FeeAmount:     doctor.ConsultationFee,
		Currency:      doctor.Currency,
	}
	switch {
	case apt.FeeAmount == 0:
		apt.PaymentStatus = model.PaymentStatusNotRequired
		apt.Status = model.AppointmentStatusConfirmed
	case method == model.PaymentMethodCash:
		apt.PaymentStatus = model.PaymentStatusPayAtClinic
	default:
		apt.PaymentStatus = model.PaymentStatusUnpaid
	}

	evt, err := event.Appointment(model.EventAppointmentCreated, apt, "", actor.UserID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.repo.CreateIfSlotFree(ctx, apt, evt); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			if s.metrics != nil {
				s.metrics.SlotConflicts.Inc()
			}
			s.observeBooking("conflict")
			return nil, errors.Conflict("slot unavailable", err)
		}
		return nil, errors.Internal(err)
	}
	s.observeBooking("created")

	if apt.Status == model.AppointmentStatusConfirmed {
		s.scheduleReminders(ctx, apt)
	}
	s.notifyParties(ctx, apt,
		model.Message{
			Type:    model.NotificationAppointmentBooked,
			Subject: "Appointment booked",
			Content: fmt.Sprintf("Your appointment with %s on %s is %s.", doctor.FullName, s.when(apt.StartTime), apt.Status),
		},
		model.Message{
			Type:    model.NotificationAppointmentRequest,
			Subject: "New appointment request",
			Content: fmt.Sprintf("New %s booking with %s on %s.", apt.Type, doctor.FullName, s.when(apt.StartTime)),
		})
	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionCreate, model.AuditEntityAppointment, apt.ID, nil)

	log.Info().
		Str("appointment_id", apt.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Time("start", apt.StartTime).
		Msg("appointment booked")
	return apt, nil
}

// bookable loads the clinic and doctor and checks they accept bookings.
func (s *Service) bookable(ctx context.Context, clinicID, doctorID uuid.UUID) (*model.Clinic, *model.Doctor, error) {
	clinic, err := s.clinicRepo.Get(ctx, clinicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, errors.NotFound("clinic", err)
		}
		return nil, nil, errors.Internal(err)
	}
	if clinic.Status != model.ClinicStatusApproved {
		return nil, nil, errors.Unprocessable("clinic is not accepting bookings", nil)
	}

	doctor, err := s.doctorRepo.Get(ctx, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, errors.NotFound("doctor", err)
		}
		return nil, nil, errors.Internal(err)
	}
	if doctor.ClinicID != clinic.ID {
		return nil, nil, errors.Unprocessable("doctor does not belong to this clinic", nil)
	}
	if !doctor.IsActive() {
		return nil, nil, errors.Unprocessable("doctor is not accepting bookings", nil)
	}
	return clinic, doctor, nil
}

func (s *Service) observeBooking(result string) {
	if s.metrics != nil {
		s.metrics.Bookings.WithLabelValues(result).Inc()
	}
}

func (s *Service) when(t time.Time) string {
	return t.In(s.loc).Format("Mon, Jan 2 2006 at 3:04 PM")
}

// scope returns the patient or clinic the actor is limited to. Admins get
// neither.
func (s *Service) scope(ctx context.Context, actor model.Actor) (patientID, clinicID *uuid.UUID, err error) {
	switch actor.Role {
	case model.RoleAdmin:
		return nil, nil, nil
	case model.RolePatient:
		p, err := s.patientRepo.GetByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, errors.Forbidden("no patient profile")
			}
			return nil, nil, errors.Internal(err)
		}
		return &p.ID, nil, nil
	case model.RoleClinic:
		c, err := s.clinicRepo.GetByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, errors.Forbidden("no clinic registered")
			}
			return nil, nil, errors.Internal(err)
		}
		return nil, &c.ID, nil
	default:
		return nil, nil, errors.Forbidden("not allowed to view appointments")
	}
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("appointment", err)
		}
		return nil, errors.Internal(err)
	}
	patientID, clinicID, err := s.scope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if (patientID != nil && apt.PatientID != *patientID) || (clinicID != nil && apt.ClinicID != *clinicID) {
		return nil, errors.Forbidden("not allowed to view this appointment")
	}
	return apt, nil
}

// List narrows the filter to what the actor may see.
func (s *Service) List(ctx context.Context, actor model.Actor, filter model.AppointmentFilter, page model.Page) ([]*model.Appointment, int64, error) {
	patientID, clinicID, err := s.scope(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	if patientID != nil {
		filter.PatientID = patientID
	}
	if clinicID != nil {
		filter.ClinicID = clinicID
	}
	apts, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, 0, errors.Internal(err)
	}
	return apts, total, nil
}

// ChangeStatus applies a lifecycle transition on behalf of actor.
func (s *Service) ChangeStatus(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.StatusChangeRequest) (*model.Appointment, error) {
	apt, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, apt, req.Status); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, apt, req.Status, req.Reason, req.Notes)
}

func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Appointment, error) {
	return s.ChangeStatus(ctx, actor, id, &model.StatusChangeRequest{Status: model.AppointmentStatusCancelled, Reason: reason})
}

// authorize decides who may move an appointment the caller can already see.
func (s *Service) authorize(actor model.Actor, apt *model.Appointment, next model.AppointmentStatus) error {
	switch actor.Role {
	case model.RoleAdmin, model.RoleClinic:
		return nil
	case model.RolePatient:
		if next != model.AppointmentStatusCancelled {
			return errors.Forbidden("patients can only cancel appointments")
		}
		if apt.StartTime.Before(s.now().Add(PatientCancelCutoff)) {
			return errors.Unprocessable("appointments can only be cancelled at least 2 hours before the start", nil)
		}
		return nil
	default:
		return errors.Forbidden("not allowed to change this appointment")
	}
}

// statusAttempts bounds how often a transition is re-derived after a
// payment webhook changed the row underneath it.
const statusAttempts = 3

func (s *Service) transition(ctx context.Context, actor model.Actor, current *model.Appointment, next model.AppointmentStatus, reason, notes string) (*model.Appointment, error) {
	prev := current.Status
	if !prev.CanTransitionTo(next) {
		return nil, errors.Unprocessable(fmt.Sprintf("invalid appointment status transition from %s to %s", prev, next), nil)
	}

	var apt *model.Appointment
	for attempt := 1; ; attempt++ {
		apt = withStatus(current, actor, next, reason, notes)
		evt, err := event.Appointment(model.EventAppointmentStatusChanged, apt, prev, actor.UserID)
		if err != nil {
			return nil, errors.Internal(err)
		}
		err = s.repo.UpdateStatus(ctx, apt, prev, current.PaymentStatus, evt)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt == statusAttempts {
			return nil, s.statusFailed(err)
		}

		// only the payment side may have moved; anything else is a real conflict
		fresh, err := s.repo.Get(ctx, current.ID)
		if err != nil {
			return nil, errors.Internal(err)
		}
		if fresh.Status != prev {
			return nil, errors.Conflict("appointment changed concurrently, reload and retry", nil)
		}
		current = fresh
	}

	switch {
	case next == model.AppointmentStatusConfirmed:
		s.scheduleReminders(ctx, apt)
	case next != model.AppointmentStatusInProgress:
		if err := s.reminders.Cancel(ctx, apt.ID); err != nil {
			log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to cancel reminders")
		}
	}

	content := fmt.Sprintf("Your appointment on %s is now %s.", s.when(apt.StartTime), next)
	if apt.CancelReason != nil && next == model.AppointmentStatusCancelled {
		content += " Reason: " + *apt.CancelReason
	}
	s.notifyParties(ctx, apt, model.Message{
		Type:    model.NotificationAppointmentStatus,
		Subject: "Appointment update",
		Content: content,
	}, model.Message{})

	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionStatusChange, model.AuditEntityAppointment, apt.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"from": prev, "to": next, "reason": reason},
	})
	return apt, nil
}

// withStatus returns a copy of apt moved to next. A cancelled appointment
// that was already paid is left for a refund, issued from the provider
// dashboard.
func withStatus(apt *model.Appointment, actor model.Actor, next model.AppointmentStatus, reason, notes string) *model.Appointment {
	updated := *apt
	updated.Status = next
	if notes != "" {
		updated.Notes = notes
	}
	if next == model.AppointmentStatusCancelled {
		if reason != "" {
			updated.CancelReason = &reason
		}
		by := actor.UserID
		updated.CancelledBy = &by
		if updated.PaymentStatus == model.PaymentStatusPaid {
			updated.PaymentStatus = model.PaymentStatusRefundPending
		}
	}
	return &updated
}

func (s *Service) statusFailed(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return errors.Conflict("appointment changed concurrently, reload and retry", err)
	}
	return errors.Internal(err)
}

// Reschedule moves a pending or confirmed appointment to a new slot.
func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.RescheduleRequest) (*model.Appointment, error) {
	apt, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.Is(model.RoleDoctor) {
		return nil, errors.Forbidden("not allowed to reschedule")
	}
	if apt.Status != model.AppointmentStatusPending && apt.Status != model.AppointmentStatusConfirmed {
		return nil, errors.Unprocessable(fmt.Sprintf("cannot reschedule a %s appointment", apt.Status), nil)
	}
	if err := s.checkStart(req.StartTime); err != nil {
		return nil, err
	}
	end := req.StartTime.Add(apt.EndTime.Sub(apt.StartTime))
	if req.EndTime != nil {
		end = *req.EndTime
	}
	if err := checkDuration(req.StartTime, end); err != nil {
		return nil, err
	}

	previousStart := apt.StartTime
	apt.StartTime = req.StartTime.UTC()
	apt.EndTime = end.UTC()

	evt, err := event.Appointment(model.EventAppointmentRescheduled, apt, apt.Status, actor.UserID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.repo.RescheduleIfSlotFree(ctx, apt, evt); err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotTaken):
			if s.metrics != nil {
				s.metrics.SlotConflicts.Inc()
			}
			return nil, errors.Conflict("slot unavailable", err)
		case errors.Is(err, repository.ErrConflict):
			return nil, errors.Conflict("appointment changed concurrently, reload and retry", err)
		}
		return nil, errors.Internal(err)
	}

	if apt.Status == model.AppointmentStatusConfirmed {
		s.scheduleReminders(ctx, apt)
	}
	msg := model.Message{
		Type:    model.NotificationAppointmentMoved,
		Subject: "Appointment rescheduled",
		Content: fmt.Sprintf("Your appointment moved from %s to %s.", s.when(previousStart), s.when(apt.StartTime)),
	}
	s.notifyParties(ctx, apt, msg, msg)
	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionUpdate, model.AuditEntityAppointment, apt.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"from": previousStart, "to": apt.StartTime},
	})
	return apt, nil
}

func (s *Service) scheduleReminders(ctx context.Context, apt *model.Appointment) {
	if err := s.reminders.Schedule(ctx, apt); err != nil {
		log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to schedule reminders")
	}
}

// notifyParties sends toPatient to the patient and toClinic to the clinic.
// A message with an empty type is skipped.
func (s *Service) notifyParties(ctx context.Context, apt *model.Appointment, toPatient, toClinic model.Message) {
	parties, err := s.parties.ForAppointment(ctx, apt)
	if err != nil {
		log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to resolve notification recipients")
		return
	}
	meta := model.JSONMap{"appointment_id": apt.ID.String(), "status": string(apt.Status)}
	if toPatient.Type != "" {
		toPatient.Metadata = meta
		notification.Send(ctx, s.notifier, parties.ToPatient(toPatient))
	}
	if toClinic.Type != "" {
		toClinic.Metadata = meta
		notification.Send(ctx, s.notifier, parties.ToClinic(toClinic))
	}
}
