package review

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/event"
	"github.com/igabaycare/care-api/internal/service/review"
	"github.com/igabaycare/care-api/internal/testutil"
)

func setup(t *testing.T) (*testutil.API, *testutil.World) {
	w := testutil.NewWorld(t)
	api := testutil.NewAPI(t)
	svc := review.NewService(w.Repos.Reviews, w.Repos.Appointments, w.Repos.Patients, event.NewService(w.Repos.Outbox))
	api.Mount(NewHandler(svc, api.Auth))
	return api, w
}

func TestCreateAndListReviews(t *testing.T) {
	api, w := setup(t)
	apt := w.Appointment(t, time.Now().Add(-48*time.Hour).Truncate(time.Hour), model.AppointmentStatusCompleted, model.PaymentStatusPaid)
	token := api.Token(t, w.PatientActor())

	var rv model.Review
	testutil.Decode(t, api.Do(t, http.MethodPost, "/reviews", token, map[string]interface{}{
		"appointment_id": apt.ID,
		"rating":         5,
		"comment":        "Short wait and clear advice",
	}), http.StatusCreated, &rv)
	assert.Equal(t, w.Clinic.ID, rv.ClinicID)

	again := api.Do(t, http.MethodPost, "/reviews", token, map[string]interface{}{"appointment_id": apt.ID, "rating": 4})
	assert.Equal(t, http.StatusConflict, again.Code)

	var page testutil.Page
	testutil.Decode(t, api.Do(t, http.MethodGet, "/clinics/"+w.Clinic.ID.String()+"/reviews", "", nil), http.StatusOK, &page)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestCreateReviewRejected(t *testing.T) {
	api, w := setup(t)
	upcoming := w.Appointment(t, time.Now().Add(48*time.Hour).Truncate(time.Hour), model.AppointmentStatusConfirmed, model.PaymentStatusPaid)
	body := map[string]interface{}{"appointment_id": upcoming.ID, "rating": 5}

	assert.Equal(t, http.StatusUnauthorized, api.Do(t, http.MethodPost, "/reviews", "", body).Code)
	assert.Equal(t, http.StatusForbidden, api.Do(t, http.MethodPost, "/reviews", api.Token(t, w.ClinicActor()), body).Code)

	token := api.Token(t, w.PatientActor())
	assert.Equal(t, http.StatusUnprocessableEntity, api.Do(t, http.MethodPost, "/reviews", token, body).Code)

	env := testutil.Decode(t, api.Do(t, http.MethodPost, "/reviews", token, map[string]interface{}{"appointment_id": upcoming.ID, "rating": 9}), http.StatusBadRequest, nil)
	require.NotNil(t, env.Error)
	require.NotEmpty(t, env.Error.Fields)
	assert.Equal(t, "rating", env.Error.Fields[0].Field)
}
