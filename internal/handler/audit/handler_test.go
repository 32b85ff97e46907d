package audit

import (
	"context"
	"encoding/csv"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/testutil"
)

func TestListAndExport(t *testing.T) {
	w := testutil.NewWorld(t)
	svc := audit.NewService(w.Repos.Audit)
	api := testutil.NewAPI(t)
	api.Mount(NewHandler(svc, api.Auth))

	ctx := context.Background()
	aptID := uuid.New()
	require.NoError(t, svc.Log(ctx, w.PatientUser.ID, model.AuditActionCreate, model.AuditEntityAppointment, aptID, &audit.LogOptions{IPAddress: "203.0.113.7"}))
	require.NoError(t, svc.Log(ctx, w.ClinicUser.ID, model.AuditActionStatusChange, model.AuditEntityAppointment, aptID, nil))
	require.NoError(t, svc.Log(ctx, uuid.Nil, model.AuditActionPayment, model.AuditEntityTransaction, uuid.New(), nil))

	admin := api.Token(t, w.AdminActor())

	var page testutil.Page
	testutil.Decode(t, api.Do(t, http.MethodGet, "/admin/audit-logs?entity_type=appointment", admin, nil), http.StatusOK, &page)
	assert.Equal(t, 2, page.Pagination.Total)

	testutil.Decode(t, api.Do(t, http.MethodGet, "/admin/audit-logs?user_id="+w.ClinicUser.ID.String(), admin, nil), http.StatusOK, &page)
	assert.Equal(t, 1, page.Pagination.Total)

	rec := api.Do(t, http.MethodGet, "/admin/audit-logs/export?entity_id="+aptID.String(), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment; filename=audit_logs_"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Action", rows[0][2])
	actions := []string{rows[1][2], rows[2][2]}
	assert.ElementsMatch(t, []string{model.AuditActionCreate, model.AuditActionStatusChange}, actions)
}

func TestAuditRequiresAdmin(t *testing.T) {
	w := testutil.NewWorld(t)
	api := testutil.NewAPI(t)
	api.Mount(NewHandler(audit.NewService(w.Repos.Audit), api.Auth))

	assert.Equal(t, http.StatusUnauthorized, api.Do(t, http.MethodGet, "/admin/audit-logs", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.Do(t, http.MethodGet, "/admin/audit-logs", api.Token(t, w.ClinicActor()), nil).Code)

	admin := api.Token(t, w.AdminActor())
	assert.Equal(t, http.StatusBadRequest, api.Do(t, http.MethodGet, "/admin/audit-logs?user_id=nope", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.Do(t, http.MethodGet, "/admin/audit-logs/export?from=yesterday", admin, nil).Code)
}
