package prescription

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/testutil"
	"github.com/igabaycare/care-api/pkg/errors"
)

func newService(w *testutil.World, rec *testutil.Recorder) *Service {
	return NewService(w.Repos.Prescriptions, w.Repos.Appointments, w.Repos.Clinics, w.Repos.Patients, rec, audit.NewService(w.Repos.Audit))
}

func request(aptID uuid.UUID) *model.CreatePrescriptionRequest {
	return &model.CreatePrescriptionRequest{
		AppointmentID: aptID,
		Diagnosis:     "Acute upper respiratory infection",
		Medications: []model.Medication{
			{Name: "Paracetamol 500mg", Dosage: "1 tablet", Frequency: "every 6 hours", Duration: "3 days"},
		},
		Instructions: "Drink plenty of fluids.",
	}
}

func TestIssuePrescription(t *testing.T) {
	w := testutil.NewWorld(t)
	rec := &testutil.Recorder{}
	svc := newService(w, rec)
	ctx := context.Background()
	apt := w.Appointment(t, time.Now().Add(-2*time.Hour).Truncate(time.Hour), model.AppointmentStatusCompleted, model.PaymentStatusPaid)

	p, err := svc.Create(ctx, w.ClinicActor(), request(apt.ID))
	require.NoError(t, err)
	assert.Equal(t, w.Patient.ID, p.PatientID)
	assert.Len(t, p.Medications, 1)

	events := w.Store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPrescriptionIssued, events[0].EventType)
	assert.NotContains(t, string(events[0].Payload), "Paracetamol")
	assert.Equal(t, []string{model.NotificationPrescriptionIssued}, rec.Types(w.PatientUser.ID))

	got, err := svc.Get(ctx, w.PatientActor(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Diagnosis, got.Diagnosis)
	_, err = svc.Get(ctx, w.ClinicActor(), p.ID)
	assert.NoError(t, err)

	list, total, err := svc.ListMine(ctx, w.PatientActor(), model.Page{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, p.ID, list[0].ID)
}

func TestIssuePrescriptionRules(t *testing.T) {
	w := testutil.NewWorld(t)
	svc := newService(w, &testutil.Recorder{})
	ctx := context.Background()
	upcoming := w.Appointment(t, time.Now().Add(48*time.Hour).Truncate(time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)

	_, err := svc.Create(ctx, w.ClinicActor(), request(upcoming.ID))
	assert.True(t, errors.HasCode(err, errors.ErrUnprocessable))

	_, err = svc.Create(ctx, w.PatientActor(), request(upcoming.ID))
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	otherUser := w.User(t, "desk@makati-med.ph", model.RoleClinic)
	require.NoError(t, w.Repos.Clinics.Create(ctx, &model.Clinic{UserID: otherUser.ID, Name: "Makati Med", Email: otherUser.Email, Status: model.ClinicStatusApproved}))
	running := w.Appointment(t, time.Now().Add(-10*time.Minute), model.AppointmentStatusInProgress, model.PaymentStatusPaid)
	_, err = svc.Create(ctx, model.Actor{UserID: otherUser.ID, Role: model.RoleClinic}, request(running.ID))
	assert.True(t, errors.HasCode(err, errors.ErrForbidden))

	empty := request(running.ID)
	empty.Medications = nil
	_, err = svc.Create(ctx, w.ClinicActor(), empty)
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}
