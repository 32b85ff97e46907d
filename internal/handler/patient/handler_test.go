package patient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/patient"
	"github.com/igabaycare/care-api/internal/testutil"
)

func setup(t *testing.T) (*testutil.API, *testutil.World) {
	w := testutil.NewWorld(t)
	auditor := audit.NewService(w.Repos.Audit)
	svc := patient.NewService(w.Repos.Patients, w.Repos.Clinics, w.Repos.Appointments, auditor)
	api := testutil.NewAPI(t)
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

func TestProfile(t *testing.T) {
	api, w := setup(t)
	token := api.Token(t, w.PatientActor())

	var p model.Patient
	rec := api.Do(t, http.MethodPut, "/patients/me", token, model.UpsertPatientRequest{
		FirstName: "Maria", LastName: "Dela Cruz", Phone: "0917-123-4567", BloodType: "O+",
	})
	testutil.Decode(t, rec, http.StatusOK, &p)
	assert.Equal(t, "Dela Cruz", p.LastName)

	testutil.Decode(t, api.Do(t, http.MethodGet, "/patients/me", token, nil), http.StatusOK, &p)
	assert.Equal(t, w.Patient.ID, p.ID)

	rec = api.Do(t, http.MethodPut, "/patients/me", token, map[string]string{"first_name": "Maria", "last_name": "Santos", "blood_type": "Z"})
	env := testutil.Decode(t, rec, http.StatusBadRequest, nil)
	assert.Equal(t, "blood_type", env.Error.Fields[0].Field)

	rec = api.Do(t, http.MethodGet, "/patients/me", api.Token(t, w.ClinicActor()), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetPatientRecordsAccess(t *testing.T) {
	api, w := setup(t)
	path := "/patients/" + w.Patient.ID.String()

	rec := api.Do(t, http.MethodGet, path, api.Token(t, w.ClinicActor()), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, views(w), "denied reads are not recorded as views")

	w.Appointment(t, time.Now().Add(48*time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)

	var p model.Patient
	testutil.Decode(t, api.Do(t, http.MethodGet, path, api.Token(t, w.ClinicActor()), nil), http.StatusOK, &p)
	assert.Equal(t, w.Patient.ID, p.ID)

	logged := views(w)
	require.Len(t, logged, 1)
	assert.Equal(t, model.AuditEntityPatient, logged[0].EntityType)
	assert.Equal(t, w.Patient.ID, logged[0].EntityID)
	require.NotNil(t, logged[0].UserID)
	assert.Equal(t, w.ClinicUser.ID, *logged[0].UserID)
}
