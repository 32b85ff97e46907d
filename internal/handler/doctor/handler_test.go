package doctor

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/doctor"
	"github.com/igabaycare/care-api/internal/testutil"
)

var manila = time.FixedZone("PHT", 8*60*60)

func setup(t *testing.T) (*testutil.API, *testutil.World) {
	w := testutil.NewWorld(t)
	api := testutil.NewAPI(t)
	svc := doctor.NewService(w.Repos.Doctors, w.Repos.Clinics, w.Repos.Appointments, audit.NewService(w.Repos.Audit), manila)
	api.Mount(NewHandler(svc, api.Auth))
	return api, w
}

func TestCreateAndListDoctors(t *testing.T) {
	api, w := setup(t)
	clinicToken := api.Token(t, w.ClinicActor())
	body := map[string]interface{}{
		"full_name":        "Dr. Ana Lim",
		"specialization":   "pediatrics",
		"license_number":   "PRC0099887",
		"consultation_fee": 80000,
		"work_start":       "09:00",
		"work_end":         "12:00",
		"work_days":        []int{1, 2, 3, 4, 5},
	}

	var created model.Doctor
	testutil.Decode(t, api.Do(t, http.MethodPost, "/clinics/"+w.Clinic.ID.String()+"/doctors", clinicToken, body), http.StatusCreated, &created)
	assert.Equal(t, w.Clinic.ID, created.ClinicID)
	assert.Equal(t, "Dr. Ana Lim", created.FullName)

	var list []model.Doctor
	testutil.Decode(t, api.Do(t, http.MethodGet, "/clinics/"+w.Clinic.ID.String()+"/doctors", "", nil), http.StatusOK, &list)
	assert.Len(t, list, 2)

	body["status"] = "inactive"
	testutil.Decode(t, api.Do(t, http.MethodPut, "/doctors/"+created.ID.String(), clinicToken, body), http.StatusOK, nil)
	testutil.Decode(t, api.Do(t, http.MethodGet, "/clinics/"+w.Clinic.ID.String()+"/doctors", "", nil), http.StatusOK, &list)
	assert.Len(t, list, 1)
	testutil.Decode(t, api.Do(t, http.MethodGet, "/clinics/"+w.Clinic.ID.String()+"/doctors?include_inactive=true", "", nil), http.StatusOK, &list)
	assert.Len(t, list, 2)
}

func TestCreateDoctorRejected(t *testing.T) {
	api, w := setup(t)
	path := "/clinics/" + w.Clinic.ID.String() + "/doctors"
	body := map[string]interface{}{
		"full_name":      "Dr. Ana Lim",
		"specialization": "pediatrics",
		"license_number": "PRC0099887",
		"work_start":     "9am",
		"work_end":       "12:00",
		"work_days":      []int{1},
	}

	assert.Equal(t, http.StatusUnauthorized, api.Do(t, http.MethodPost, path, "", body).Code)
	assert.Equal(t, http.StatusForbidden, api.Do(t, http.MethodPost, path, api.Token(t, w.PatientActor()), body).Code)

	env := testutil.Decode(t, api.Do(t, http.MethodPost, path, api.Token(t, w.ClinicActor()), body), http.StatusBadRequest, nil)
	require.NotNil(t, env.Error)
	require.NotEmpty(t, env.Error.Fields)
	assert.Equal(t, "work_start", env.Error.Fields[0].Field)
}

func TestAvailability(t *testing.T) {
	api, w := setup(t)
	day := time.Now().In(manila).AddDate(0, 0, 30)
	date := day.Format("2006-01-02")
	nine := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, manila)
	w.Appointment(t, nine, model.AppointmentStatusConfirmed, model.PaymentStatusPaid)

	var slots []model.TimeSlot
	testutil.Decode(t, api.Do(t, http.MethodGet, "/doctors/"+w.Doctor.ID.String()+"/availability?date="+date, "", nil), http.StatusOK, &slots)
	// 08:00-17:00 in 30 minute steps, less the booked 09:00
	require.Len(t, slots, 17)
	for _, s := range slots {
		assert.False(t, s.Start.Equal(nine))
	}

	assert.Equal(t, http.StatusBadRequest, api.Do(t, http.MethodGet, "/doctors/"+w.Doctor.ID.String()+"/availability", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.Do(t, http.MethodGet, "/doctors/"+w.Doctor.ID.String()+"/availability?date=30-01-2026", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.Do(t, http.MethodGet, "/doctors/"+uuid.NewString()+"/availability?date="+date, "", nil).Code)
}
