package doctor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type Service struct {
	repo            repository.DoctorRepository
	clinicRepo      repository.ClinicRepository
	appointmentRepo repository.AppointmentRepository
	auditor         *audit.Service
	loc             *time.Location
	now             func() time.Time
}

func NewService(repo repository.DoctorRepository, clinicRepo repository.ClinicRepository,
	appointmentRepo repository.AppointmentRepository, auditor *audit.Service, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:            repo,
		clinicRepo:      clinicRepo,
		appointmentRepo: appointmentRepo,
		auditor:         auditor,
		loc:             loc,
		now:             time.Now,
	}
}

func apply(d *model.Doctor, req *model.DoctorRequest) {
	d.FullName = req.FullName
	d.Specialization = req.Specialization
	d.LicenseNumber = req.LicenseNumber
	d.Email = req.Email
	d.Phone = req.Phone
	d.ConsultationFee = req.ConsultationFee
	d.SlotDurationMinutes = req.SlotDurationMinutes
	if d.SlotDurationMinutes == 0 {
		d.SlotDurationMinutes = 30
	}
	d.WorkStart = req.WorkStart
	d.WorkEnd = req.WorkEnd
	d.WorkDays = req.WorkDays
	if req.Status != "" {
		d.Status = req.Status
	}
}

// ownedClinic checks that actor manages the clinic. Admins manage all.
func (s *Service) ownedClinic(ctx context.Context, actor model.Actor, clinicID uuid.UUID) (*model.Clinic, error) {
	c, err := s.clinicRepo.Get(ctx, clinicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("clinic", err)
		}
		return nil, errors.Internal(err)
	}
	if actor.Is(model.RoleAdmin) || (actor.Is(model.RoleClinic) && c.UserID == actor.UserID) {
		return c, nil
	}
	return nil, errors.Forbidden("not allowed to manage doctors of this clinic")
}

func (s *Service) Create(ctx context.Context, actor model.Actor, clinicID uuid.UUID, req *model.DoctorRequest) (*model.Doctor, error) {
	c, err := s.ownedClinic(ctx, actor, clinicID)
	if err != nil {
		return nil, err
	}
	d := &model.Doctor{
		Base:     model.Base{ID: uuid.New()},
		ClinicID: c.ID,
		Currency: "PHP",
		Status:   model.DoctorStatusActive,
	}
	apply(d, req)
	if _, _, err := d.WorkingHours(s.now(), s.loc); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, errors.Internal(err)
	}
	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionCreate, model.AuditEntityDoctor, d.ID, nil)
	return d, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.DoctorRequest) (*model.Doctor, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedClinic(ctx, actor, d.ClinicID); err != nil {
		return nil, err
	}
	apply(d, req)
	if _, _, err := d.WorkingHours(s.now(), s.loc); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}

	if err := s.repo.Update(ctx, d); err != nil {
		return nil, errors.Internal(err)
	}
	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionUpdate, model.AuditEntityDoctor, d.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": d.Status, "consultation_fee": d.ConsultationFee},
	})
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("doctor", err)
		}
		return nil, errors.Internal(err)
	}
	return d, nil
}

func (s *Service) ListByClinic(ctx context.Context, clinicID uuid.UUID, activeOnly bool) ([]*model.Doctor, error) {
	doctors, err := s.repo.ListByClinic(ctx, clinicID, activeOnly)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return doctors, nil
}

// Availability lists the free slots of a doctor on date (YYYY-MM-DD in the
// booking timezone). Slots that already started are left out.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, date string) ([]model.TimeSlot, error) {
	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return nil, errors.BadRequest("date must be YYYY-MM-DD", err)
	}
	d, err := s.Get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !d.IsActive() || !d.WorksOn(day.Weekday()) {
		return []model.TimeSlot{}, nil
	}

	start, end, err := d.WorkingHours(day, s.loc)
	if err != nil {
		return nil, errors.Internal(err)
	}
	booked, err := s.appointmentRepo.ListBlocking(ctx, d.ID, start, end)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return FreeSlots(start, end, d.SlotDuration(), booked, s.now()), nil
}

// FreeSlots cuts [start, end) into step-sized slots and drops the ones that
// overlap booked appointments or begin before now.
func FreeSlots(start, end time.Time, step time.Duration, booked []*model.Appointment, now time.Time) []model.TimeSlot {
	slots := []model.TimeSlot{}
	for t := start; !t.Add(step).After(end); t = t.Add(step) {
		slotEnd := t.Add(step)
		if t.Before(now) {
			continue
		}
		taken := false
		for _, a := range booked {
			if a.BlocksSlot() && a.Overlaps(t, slotEnd) {
				taken = true
				break
			}
		}
		if !taken {
			slots = append(slots, model.TimeSlot{Start: t, End: slotEnd})
		}
	}
	return slots
}
