package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/event"
	"github.com/igabaycare/care-api/internal/testutil"
	"github.com/igabaycare/care-api/pkg/errors"
)

func newService(w *testutil.World) *Service {
	return NewService(w.Repos.Reviews, w.Repos.Appointments, w.Repos.Patients, event.NewService(w.Repos.Outbox))
}

func TestCreateReview(t *testing.T) {
	w := testutil.NewWorld(t)
	svc := newService(w)
	ctx := context.Background()
	apt := w.Appointment(t, time.Now().Add(-48*time.Hour).Truncate(time.Hour), model.AppointmentStatusCompleted, model.PaymentStatusPaid)

	rv, err := svc.Create(ctx, w.PatientActor(), &model.CreateReviewRequest{AppointmentID: apt.ID, Rating: 4, Comment: "Very kind staff"})
	require.NoError(t, err)
	assert.Equal(t, w.Clinic.ID, rv.ClinicID)
	assert.Equal(t, w.Doctor.ID, rv.DoctorID)

	clinic, err := w.Repos.Clinics.Get(ctx, w.Clinic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, clinic.ReviewCount)
	assert.InDelta(t, 4.0, clinic.AverageRating, 0.001)

	events := w.Store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventReviewCreated, events[0].EventType)

	_, err = svc.Create(ctx, w.PatientActor(), &model.CreateReviewRequest{AppointmentID: apt.ID, Rating: 5})
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	list, total, err := svc.ListByClinic(ctx, w.Clinic.ID, model.Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Very kind staff", list[0].Comment)
}

func TestCreateReviewRules(t *testing.T) {
	w := testutil.NewWorld(t)
	svc := newService(w)
	ctx := context.Background()
	upcoming := w.Appointment(t, time.Now().Add(48*time.Hour).Truncate(time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)

	_, err := svc.Create(ctx, w.PatientActor(), &model.CreateReviewRequest{AppointmentID: upcoming.ID, Rating: 5})
	assert.True(t, errors.HasCode(err, errors.ErrUnprocessable))

	_, err = svc.Create(ctx, w.ClinicActor(), &model.CreateReviewRequest{AppointmentID: upcoming.ID, Rating: 5})
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	_, err = svc.Create(ctx, w.PatientActor(), &model.CreateReviewRequest{AppointmentID: upcoming.ID, Rating: 6})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	other := w.User(t, "pedro@example.com", model.RolePatient)
	require.NoError(t, w.Repos.Patients.Upsert(ctx, &model.Patient{UserID: other.ID, FirstName: "Pedro", LastName: "Cruz", Email: other.Email}))
	done := w.Appointment(t, time.Now().Add(-72*time.Hour).Truncate(time.Hour), model.AppointmentStatusCompleted, model.PaymentStatusPaid)
	_, err = svc.Create(ctx, model.Actor{UserID: other.ID, Role: model.RolePatient}, &model.CreateReviewRequest{AppointmentID: done.ID, Rating: 3})
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))
}
