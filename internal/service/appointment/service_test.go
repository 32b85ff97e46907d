package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/internal/service/reminder"
	world "github.com/igabaycare/care-api/internal/testutil"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/metrics"
)

type fixture struct {
	w       *world.World
	svc     *Service
	rec     *world.Recorder
	metrics *metrics.Metrics
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	w := world.NewWorld(t)
	f := &fixture{w: w, rec: &world.Recorder{}, now: time.Now().UTC().Truncate(time.Minute)}
	f.metrics = metrics.NewMetrics("test", prometheus.NewRegistry())
	reminders := reminder.NewService(w.Repos.Reminders, w.Repos.Appointments,
		notification.NewParties(w.Repos.Patients, w.Repos.Clinics), f.rec, nil, 10, time.UTC)
	f.svc = NewService(w.Repos.Appointments, w.Repos.Clinics, w.Repos.Doctors, w.Repos.Patients,
		reminders, f.rec, audit.NewService(w.Repos.Audit), f.metrics, time.UTC)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) request(start time.Time) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		ClinicID:  f.w.Clinic.ID,
		DoctorID:  f.w.Doctor.ID,
		StartTime: start,
		Type:      "consultation",
	}
}

func TestCreateBooksPendingUnpaid(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(48 * time.Hour)

	apt, err := f.svc.Create(context.Background(), f.w.PatientActor(), f.request(start))
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, model.PaymentStatusUnpaid, apt.PaymentStatus)
	assert.Equal(t, start.Add(30*time.Minute), apt.EndTime)
	assert.EqualValues(t, 50000, apt.FeeAmount)

	assert.Equal(t, []string{model.NotificationAppointmentBooked}, f.rec.Types(f.w.PatientUser.ID))
	assert.Equal(t, []string{model.NotificationAppointmentRequest}, f.rec.Types(f.w.ClinicUser.ID))
	assert.Empty(t, f.w.Store.Reminders(apt.ID))

	events := f.w.Store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAppointmentCreated, events[0].EventType)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Bookings.WithLabelValues("created")))
}

func TestCreateFreeAndCash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	free := f.w.AddDoctor(t, f.w.Clinic.ID, 0)
	req := f.request(f.now.Add(48 * time.Hour))
	req.DoctorID = free.ID
	apt, err := f.svc.Create(ctx, f.w.PatientActor(), req)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, apt.Status)
	assert.Equal(t, model.PaymentStatusNotRequired, apt.PaymentStatus)
	assert.Len(t, f.w.Store.Reminders(apt.ID), 2)

	req = f.request(f.now.Add(72 * time.Hour))
	req.PaymentMethod = model.PaymentMethodCash
	apt, err = f.svc.Create(ctx, f.w.PatientActor(), req)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPayAtClinic, apt.PaymentStatus)
}

func TestCreateRejectsPastAndOutOfWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]time.Time{
		"past":        f.now.Add(-time.Hour),
		"now":         f.now,
		"short lead":  f.now.Add(30 * time.Minute),
		"too far out": f.now.Add(91 * 24 * time.Hour),
	}
	for name, start := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.w.PatientActor(), f.request(start))
			assert.True(t, errors.HasCode(err, errors.ErrBadRequest), err)
		})
	}

	apts, total, err := f.w.Repos.Appointments.List(ctx, model.AppointmentFilter{}, model.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, apts)
	assert.Empty(t, f.w.Store.OutboxEvents())
}

func TestCreateRejectsBadDuration(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(48 * time.Hour)
	for _, d := range []time.Duration{10 * time.Minute, 5 * time.Hour} {
		end := start.Add(d)
		req := f.request(start)
		req.EndTime = &end
		_, err := f.svc.Create(context.Background(), f.w.PatientActor(), req)
		assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
	}
}

func TestCreateRequiresBookableClinicAndDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.now.Add(48 * time.Hour)

	other := &model.Clinic{UserID: f.w.Admin.ID, Name: "Pending Clinic", Status: model.ClinicStatusPending}
	require.NoError(t, f.w.Repos.Clinics.Create(ctx, other))
	req := f.request(start)
	req.ClinicID = other.ID
	_, err := f.svc.Create(ctx, f.w.PatientActor(), req)
	assert.True(t, errors.HasCode(err, errors.ErrUnprocessable))

	foreign := f.w.AddDoctor(t, other.ID, 1000)
	req = f.request(start)
	req.DoctorID = foreign.ID
	_, err = f.svc.Create(ctx, f.w.PatientActor(), req)
	assert.True(t, errors.HasCode(err, errors.ErrUnprocessable))

	_, err = f.svc.Create(ctx, f.w.ClinicActor(), f.request(start))
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))
}

func TestConcurrentBookingsForSameSlot(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(48 * time.Hour)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Create(context.Background(), f.w.PatientActor(), f.request(start.Add(time.Duration(i%2)*10*time.Minute)))
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.HasCode(err, errors.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, conflicts)
	assert.Equal(t, 7.0, testutil.ToFloat64(f.metrics.SlotConflicts))
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt, err := f.svc.Create(ctx, f.w.PatientActor(), f.request(f.now.Add(48*time.Hour)))
	require.NoError(t, err)

	_, err = f.svc.ChangeStatus(ctx, f.w.ClinicActor(), apt.ID, &model.StatusChangeRequest{Status: model.AppointmentStatusCompleted})
	assert.True(t, errors.HasCode(err, errors.ErrUnprocessable))

	apt, err = f.svc.ChangeStatus(ctx, f.w.ClinicActor(), apt.ID, &model.StatusChangeRequest{Status: model.AppointmentStatusConfirmed})
	require.NoError(t, err)
	assert.Len(t, f.w.Store.Reminders(apt.ID), 2)

	_, err = f.svc.ChangeStatus(ctx, f.w.PatientActor(), apt.ID, &model.StatusChangeRequest{Status: model.AppointmentStatusInProgress})
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	for _, next := range []model.AppointmentStatus{model.AppointmentStatusInProgress, model.AppointmentStatusCompleted} {
		apt, err = f.svc.ChangeStatus(ctx, f.w.ClinicActor(), apt.ID, &model.StatusChangeRequest{Status: next, Notes: "ok"})
		require.NoError(t, err)
	}
	assert.Equal(t, model.AppointmentStatusCompleted, apt.Status)
	for _, r := range f.w.Store.Reminders(apt.ID) {
		assert.Equal(t, model.ReminderStatusCancelled, r.Status)
	}

	_, err = f.svc.Cancel(ctx, f.w.ClinicActor(), apt.ID, "too late")
	assert.True(t, errors.HasCode(err, errors.ErrUnprocessable))
}

func TestPatientCancelPaidMarksRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt := f.w.Appointment(t, f.now.Add(24*time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)

	cancelled, err := f.svc.Cancel(ctx, f.w.PatientActor(), apt.ID, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
	assert.Equal(t, model.PaymentStatusRefundPending, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.w.PatientUser.ID, *cancelled.CancelledBy)
}

// settlingRepo runs beforeUpdate once, just before the first status write.
type settlingRepo struct {
	repository.AppointmentRepository
	beforeUpdate func()
}

func (r *settlingRepo) UpdateStatus(ctx context.Context, apt *model.Appointment, from model.AppointmentStatus, fromPayment model.PaymentStatus, events ...*model.OutboxEvent) error {
	if r.beforeUpdate != nil {
		hook := r.beforeUpdate
		r.beforeUpdate = nil
		hook()
	}
	return r.AppointmentRepository.UpdateStatus(ctx, apt, from, fromPayment, events...)
}

func TestCancelRacingPaymentMarksRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt := f.w.Appointment(t, f.now.Add(24*time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPending)

	repo := &settlingRepo{AppointmentRepository: f.w.Repos.Appointments}
	repo.beforeUpdate = func() {
		paid := *apt
		paid.PaymentStatus = model.PaymentStatusPaid
		require.NoError(t, f.w.Repos.Appointments.UpdateStatus(ctx, &paid, model.AppointmentStatusConfirmed, model.PaymentStatusPending))
	}
	f.svc.repo = repo

	cancelled, err := f.svc.Cancel(ctx, f.w.PatientActor(), apt.ID, "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefundPending, cancelled.PaymentStatus)

	stored, err := f.w.Repos.Appointments.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, stored.Status)
	assert.Equal(t, model.PaymentStatusRefundPending, stored.PaymentStatus)
}

func TestCancelLosesToConcurrentStatusChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt := f.w.Appointment(t, f.now.Add(24*time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)

	repo := &settlingRepo{AppointmentRepository: f.w.Repos.Appointments}
	repo.beforeUpdate = func() {
		started := *apt
		started.Status = model.AppointmentStatusInProgress
		require.NoError(t, f.w.Repos.Appointments.UpdateStatus(ctx, &started, model.AppointmentStatusConfirmed, model.PaymentStatusPaid))
	}
	f.svc.repo = repo

	_, err := f.svc.Cancel(ctx, f.w.ClinicActor(), apt.ID, "")
	assert.True(t, errors.HasCode(err, errors.ErrConflict))
}

func TestPatientCannotCancelLate(t *testing.T) {
	f := newFixture(t)
	apt := f.w.Appointment(t, f.now.Add(90*time.Minute), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)
	_, err := f.svc.Cancel(context.Background(), f.w.PatientActor(), apt.ID, "")
	assert.True(t, errors.HasCode(err, errors.ErrUnprocessable))
}

func TestAccessScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt := f.w.Appointment(t, f.now.Add(24*time.Hour), model.AppointmentStatusPending, model.PaymentStatusUnpaid)

	stranger := f.w.User(t, "stranger@example.com", model.RolePatient)
	require.NoError(t, f.w.Repos.Patients.Upsert(ctx, &model.Patient{UserID: stranger.ID, FirstName: "S", LastName: "T"}))
	strangerActor := model.Actor{UserID: stranger.ID, Role: model.RolePatient}

	_, err := f.svc.Get(ctx, strangerActor, apt.ID)
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))
	_, err = f.svc.Get(ctx, f.w.ClinicActor(), apt.ID)
	assert.NoError(t, err)

	list, total, err := f.svc.List(ctx, strangerActor, model.AppointmentFilter{PatientID: &f.w.Patient.ID}, model.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	_, total, err = f.svc.List(ctx, f.w.AdminActor(), model.AppointmentFilter{}, model.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apt := f.w.Appointment(t, f.now.Add(48*time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)
	blocker := f.w.Appointment(t, f.now.Add(72*time.Hour), model.AppointmentStatusPending, model.PaymentStatusUnpaid)

	_, err := f.svc.Reschedule(ctx, f.w.PatientActor(), apt.ID, &model.RescheduleRequest{StartTime: blocker.StartTime.Add(10 * time.Minute)})
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	// moving onto its own old slot overlaps only itself
	moved, err := f.svc.Reschedule(ctx, f.w.PatientActor(), apt.ID, &model.RescheduleRequest{StartTime: apt.StartTime.Add(15 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, moved.EndTime.Sub(moved.StartTime))

	var scheduled int
	for _, r := range f.w.Store.Reminders(apt.ID) {
		if r.Status == model.ReminderStatusScheduled {
			scheduled++
			assert.True(t, r.RemindAt.Before(moved.StartTime))
		}
	}
	assert.Equal(t, 2, scheduled)
	assert.Contains(t, f.rec.Types(f.w.ClinicUser.ID), model.NotificationAppointmentMoved)

	_, err = f.svc.Reschedule(ctx, f.w.PatientActor(), apt.ID, &model.RescheduleRequest{StartTime: f.now.Add(-time.Hour)})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}
