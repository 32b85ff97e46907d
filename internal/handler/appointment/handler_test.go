package appointment

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/appointment"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/internal/service/reminder"
	"github.com/igabaycare/care-api/internal/testutil"
	"github.com/igabaycare/care-api/pkg/metrics"
)

func setup(t *testing.T) (*testutil.API, *testutil.World) {
	w := testutil.NewWorld(t)
	rec := &testutil.Recorder{}
	reminders := reminder.NewService(w.Repos.Reminders, w.Repos.Appointments,
		notification.NewParties(w.Repos.Patients, w.Repos.Clinics), rec, nil, 10, time.UTC)
	svc := appointment.NewService(w.Repos.Appointments, w.Repos.Clinics, w.Repos.Doctors, w.Repos.Patients,
		reminders, rec, audit.NewService(w.Repos.Audit), metrics.NewMetrics("test", prometheus.NewRegistry()), time.UTC)

	api := testutil.NewAPI(t)
	api.Mount(NewHandler(svc, api.Auth))
	return api, w
}

// slot returns 10:00 UTC two days out, inside the doctor's hours.
func slot() time.Time {
	return time.Now().UTC().Truncate(24*time.Hour).Add(58 * time.Hour)
}

func TestCreateAppointment(t *testing.T) {
	api, w := setup(t)
	body := map[string]interface{}{
		"clinic_id":  w.Clinic.ID,
		"doctor_id":  w.Doctor.ID,
		"start_time": slot(),
		"type":       "consultation",
	}

	var apt model.Appointment
	rec := api.Do(t, http.MethodPost, "/appointments", api.Token(t, w.PatientActor()), body)
	testutil.Decode(t, rec, http.StatusCreated, &apt)
	assert.Equal(t, model.AppointmentStatusPending, apt.Status)
	assert.Equal(t, model.PaymentStatusUnpaid, apt.PaymentStatus)

	rec = api.Do(t, http.MethodPost, "/appointments", api.Token(t, w.PatientActor()), body)
	env := testutil.Decode(t, rec, http.StatusConflict, nil)
	assert.Equal(t, "slot unavailable", env.Error.Message)
}

func TestCreateAppointmentAuthAndValidation(t *testing.T) {
	api, w := setup(t)

	rec := api.Do(t, http.MethodPost, "/appointments", "", map[string]string{})
	testutil.Decode(t, rec, http.StatusUnauthorized, nil)

	rec = api.Do(t, http.MethodPost, "/appointments", api.Token(t, w.ClinicActor()), map[string]string{})
	testutil.Decode(t, rec, http.StatusForbidden, nil)

	rec = api.Do(t, http.MethodPost, "/appointments", api.Token(t, w.PatientActor()), map[string]interface{}{
		"clinic_id": w.Clinic.ID,
		"type":      "surgery",
	})
	env := testutil.Decode(t, rec, http.StatusBadRequest, nil)
	var fields []string
	for _, f := range env.Error.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "doctor_id")
	assert.Contains(t, fields, "type")
}

func TestListAndGetAreScoped(t *testing.T) {
	api, w := setup(t)
	apt := w.Appointment(t, slot(), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)
	outsider := w.User(t, "other@example.com", model.RolePatient)
	outsiderToken := api.Token(t, model.Actor{UserID: outsider.ID, Role: model.RolePatient, Email: outsider.Email})

	var page testutil.Page
	rec := api.Do(t, http.MethodGet, "/appointments?status=confirmed", api.Token(t, w.ClinicActor()), nil)
	testutil.Decode(t, rec, http.StatusOK, &page)
	assert.Equal(t, 1, page.Pagination.Total)
	var apts []model.Appointment
	require.NoError(t, json.Unmarshal(page.Data, &apts))
	require.Len(t, apts, 1)
	assert.Equal(t, apt.ID, apts[0].ID)

	rec = api.Do(t, http.MethodGet, "/appointments/"+apt.ID.String(), outsiderToken, nil)
	testutil.Decode(t, rec, http.StatusForbidden, nil)

	rec = api.Do(t, http.MethodGet, "/appointments/not-a-uuid", api.Token(t, w.PatientActor()), nil)
	testutil.Decode(t, rec, http.StatusBadRequest, nil)

	rec = api.Do(t, http.MethodGet, "/appointments?from=yesterday", api.Token(t, w.PatientActor()), nil)
	testutil.Decode(t, rec, http.StatusBadRequest, nil)
}

func TestStatusChangeAndCancel(t *testing.T) {
	api, w := setup(t)
	apt := w.Appointment(t, slot(), model.AppointmentStatusConfirmed, model.PaymentStatusPayAtClinic)
	path := "/appointments/" + apt.ID.String()

	rec := api.Do(t, http.MethodPost, path+"/status", api.Token(t, w.PatientActor()),
		map[string]string{"status": "completed"})
	testutil.Decode(t, rec, http.StatusForbidden, nil)

	rec = api.Do(t, http.MethodPost, path+"/status", api.Token(t, w.ClinicActor()),
		map[string]string{"status": "completed"})
	testutil.Decode(t, rec, http.StatusUnprocessableEntity, nil)

	var got model.Appointment
	rec = api.Do(t, http.MethodPost, path+"/cancel", api.Token(t, w.PatientActor()),
		map[string]string{"reason": "fever went down"})
	testutil.Decode(t, rec, http.StatusOK, &got)
	assert.Equal(t, model.AppointmentStatusCancelled, got.Status)

	rec = api.Do(t, http.MethodPost, path+"/cancel", api.Token(t, w.PatientActor()), nil)
	testutil.Decode(t, rec, http.StatusUnprocessableEntity, nil)
}
