package clinic

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	clinicService "github.com/igabaycare/care-api/internal/service/clinic"
	"github.com/igabaycare/care-api/internal/service/risk"
	"github.com/igabaycare/care-api/internal/testutil"
)

func setup(t *testing.T) (*testutil.API, *testutil.World) {
	w := testutil.NewWorld(t)
	svc := clinicService.NewService(w.Repos.Clinics, risk.NewService(), nil, &testutil.Recorder{},
		audit.NewService(w.Repos.Audit), nil, time.Minute)

	api := testutil.NewAPI(t)
	api.Mount(NewHandler(svc, api.Auth))
	return api, w
}

func registration() map[string]interface{} {
	return map[string]interface{}{
		"name":           "Mabuhay Dental Care",
		"email":          "hello@mabuhaydental.ph",
		"phone":          "0917 123 4567",
		"address":        "12 Osmeña Blvd",
		"city":           "Cebu City",
		"province":       "Cebu",
		"zip_code":       "6000",
		"license_number": "CLN987654",
		"specialties":    []string{"dentistry"},
	}
}

func TestPublicListing(t *testing.T) {
	api, w := setup(t)

	var page testutil.Page
	rec := api.Do(t, http.MethodGet, "/clinics?page_size=5", "", nil)
	testutil.Decode(t, rec, http.StatusOK, &page)
	assert.Equal(t, 1, page.Pagination.Total)
	assert.Equal(t, 5, page.Pagination.PageSize)

	var clinics []model.Clinic
	require.NoError(t, json.Unmarshal(page.Data, &clinics))
	require.Len(t, clinics, 1)
	assert.Equal(t, w.Clinic.ID, clinics[0].ID)

	rec = api.Do(t, http.MethodGet, "/clinics/search", "", nil)
	testutil.Decode(t, rec, http.StatusBadRequest, nil)

	rec = api.Do(t, http.MethodGet, "/clinics/"+w.Clinic.ID.String(), "", nil)
	testutil.Decode(t, rec, http.StatusOK, nil)
}

func TestRegisterAndApprove(t *testing.T) {
	api, w := setup(t)
	owner := w.User(t, "admin@mabuhaydental.ph", model.RoleClinic)
	ownerToken := api.Token(t, model.Actor{UserID: owner.ID, Role: model.RoleClinic, Email: owner.Email})
	adminToken := api.Token(t, w.AdminActor())

	var c model.Clinic
	rec := api.Do(t, http.MethodPost, "/clinics", ownerToken, registration())
	testutil.Decode(t, rec, http.StatusCreated, &c)
	assert.Equal(t, model.ClinicStatusPending, c.Status)

	rec = api.Do(t, http.MethodGet, "/clinics/"+c.ID.String(), "", nil)
	testutil.Decode(t, rec, http.StatusNotFound, nil)
	rec = api.Do(t, http.MethodGet, "/clinics/"+c.ID.String(), ownerToken, nil)
	testutil.Decode(t, rec, http.StatusOK, nil)

	rec = api.Do(t, http.MethodGet, "/admin/clinics?status=pending", ownerToken, nil)
	testutil.Decode(t, rec, http.StatusForbidden, nil)

	var page testutil.Page
	rec = api.Do(t, http.MethodGet, "/admin/clinics?status=pending", adminToken, nil)
	testutil.Decode(t, rec, http.StatusOK, &page)
	assert.Equal(t, 1, page.Pagination.Total)

	rec = api.Do(t, http.MethodPost, "/admin/clinics/"+c.ID.String()+"/approve", adminToken, nil)
	testutil.Decode(t, rec, http.StatusOK, &c)
	assert.Equal(t, model.ClinicStatusApproved, c.Status)

	rec = api.Do(t, http.MethodPost, "/admin/clinics/"+c.ID.String()+"/suspend", adminToken,
		map[string]string{"reason": "expired license"})
	testutil.Decode(t, rec, http.StatusOK, &c)
	assert.Equal(t, model.ClinicStatusSuspended, c.Status)
}

func TestRegisterValidation(t *testing.T) {
	api, w := setup(t)
	body := registration()
	body["phone"] = "12345"

	rec := api.Do(t, http.MethodPost, "/clinics", api.Token(t, w.ClinicActor()), body)
	env := testutil.Decode(t, rec, http.StatusBadRequest, nil)
	require.Len(t, env.Error.Fields, 1)
	assert.Equal(t, "phone", env.Error.Fields[0].Field)
	assert.Equal(t, "phphone", env.Error.Fields[0].Rule)

	rec = api.Do(t, http.MethodPost, "/clinics", api.Token(t, w.PatientActor()), registration())
	testutil.Decode(t, rec, http.StatusForbidden, nil)
}
