package prescription

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/prescription"
	"github.com/igabaycare/care-api/internal/testutil"
)

func setup(t *testing.T) (*testutil.API, *testutil.World) {
	w := testutil.NewWorld(t)
	api := testutil.NewAPI(t)
	auditor := audit.NewService(w.Repos.Audit)
	svc := prescription.NewService(w.Repos.Prescriptions, w.Repos.Appointments, w.Repos.Clinics, w.Repos.Patients, &testutil.Recorder{}, auditor)
	api.Mount(NewHandler(svc, api.Auth, auditor))
	return api, w
}

func views(w *testutil.World) []*model.AuditLog {
	var out []*model.AuditLog
	for _, l := range w.Store.AuditLogs() {
		if l.Action == model.AuditActionView {
			out = append(out, l)
		}
	}
	return out
}

func body(apt *model.Appointment) map[string]interface{} {
	return map[string]interface{}{
		"appointment_id": apt.ID,
		"diagnosis":      "Allergic rhinitis",
		"medications": []map[string]string{
			{"name": "Cetirizine 10mg", "dosage": "1 tablet", "frequency": "once daily", "duration": "7 days"},
		},
		"instructions": "Avoid dust exposure.",
	}
}

func TestIssueAndReadPrescription(t *testing.T) {
	api, w := setup(t)
	apt := w.Appointment(t, time.Now().Add(-3*time.Hour).Truncate(time.Hour), model.AppointmentStatusCompleted, model.PaymentStatusPaid)

	var p model.Prescription
	testutil.Decode(t, api.Do(t, http.MethodPost, "/prescriptions", api.Token(t, w.ClinicActor()), body(apt)), http.StatusCreated, &p)
	assert.Equal(t, w.Patient.ID, p.PatientID)
	assert.Empty(t, views(w))

	patientToken := api.Token(t, w.PatientActor())
	var got model.Prescription
	testutil.Decode(t, api.Do(t, http.MethodGet, "/prescriptions/"+p.ID.String(), patientToken, nil), http.StatusOK, &got)
	assert.Equal(t, "Allergic rhinitis", got.Diagnosis)

	var page testutil.Page
	testutil.Decode(t, api.Do(t, http.MethodGet, "/prescriptions/me", patientToken, nil), http.StatusOK, &page)
	assert.Equal(t, 1, page.Pagination.Total)

	logged := views(w)
	require.Len(t, logged, 2)
	assert.Equal(t, model.AuditEntityPrescription, logged[0].EntityType)
	assert.Equal(t, p.ID, logged[0].EntityID)
	require.NotNil(t, logged[0].UserID)
	assert.Equal(t, w.PatientUser.ID, *logged[0].UserID)
}

func TestPrescriptionAccess(t *testing.T) {
	api, w := setup(t)
	apt := w.Appointment(t, time.Now().Add(-3*time.Hour).Truncate(time.Hour), model.AppointmentStatusCompleted, model.PaymentStatusPaid)
	clinicToken := api.Token(t, w.ClinicActor())

	assert.Equal(t, http.StatusForbidden, api.Do(t, http.MethodPost, "/prescriptions", api.Token(t, w.PatientActor()), body(apt)).Code)
	assert.Equal(t, http.StatusBadRequest, api.Do(t, http.MethodPost, "/prescriptions", clinicToken, map[string]interface{}{"appointment_id": apt.ID}).Code)

	var p model.Prescription
	testutil.Decode(t, api.Do(t, http.MethodGet, "/prescriptions/me", clinicToken, nil), http.StatusForbidden, nil)
	testutil.Decode(t, api.Do(t, http.MethodPost, "/prescriptions", clinicToken, body(apt)), http.StatusCreated, &p)

	stranger := w.User(t, "juan@example.com", model.RolePatient)
	token := api.Token(t, model.Actor{UserID: stranger.ID, Role: model.RolePatient, Email: stranger.Email})
	assert.Equal(t, http.StatusForbidden, api.Do(t, http.MethodGet, "/prescriptions/"+p.ID.String(), token, nil).Code)
	assert.Empty(t, views(w))
}
