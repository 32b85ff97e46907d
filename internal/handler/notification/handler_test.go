package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/config"
	"github.com/igabaycare/care-api/internal/email"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/internal/testutil"
	"github.com/igabaycare/care-api/pkg/messaging"
)

func TestInboxFlow(t *testing.T) {
	w := testutil.NewWorld(t)
	svc := notification.NewService(w.Repos.Notifications, w.Repos.Users, email.NewLogService(), messaging.NewMemoryBroker(), config.NotificationConfig{}, nil)
	api := testutil.NewAPI(t)
	api.Mount(NewHandler(svc, api.Auth))

	ctx := context.Background()
	for _, subject := range []string{"Appointment confirmed", "Reminder: tomorrow 9:00"} {
		require.NoError(t, svc.Notify(ctx, model.Message{UserID: w.PatientUser.ID, Type: "appointment", Subject: subject}))
	}
	require.NoError(t, svc.Notify(ctx, model.Message{UserID: w.ClinicUser.ID, Type: "appointment", Subject: "New booking"}))

	token := api.Token(t, w.PatientActor())

	var page testutil.Page
	testutil.Decode(t, api.Do(t, http.MethodGet, "/notifications", token, nil), http.StatusOK, &page)
	assert.Equal(t, 2, page.Pagination.Total)

	var items []model.Notification
	require.NoError(t, json.Unmarshal(page.Data, &items))
	require.Len(t, items, 2)

	var count struct {
		Count int64 `json:"count"`
	}
	testutil.Decode(t, api.Do(t, http.MethodGet, "/notifications/unread-count", token, nil), http.StatusOK, &count)
	assert.Equal(t, int64(2), count.Count)

	rec := api.Do(t, http.MethodPost, "/notifications/"+items[0].ID.String()+"/read", token, nil)
	testutil.Decode(t, rec, http.StatusOK, nil)

	testutil.Decode(t, api.Do(t, http.MethodGet, "/notifications?unread=true", token, nil), http.StatusOK, &page)
	assert.Equal(t, 1, page.Pagination.Total)

	var updated struct {
		Updated int64 `json:"updated"`
	}
	testutil.Decode(t, api.Do(t, http.MethodPost, "/notifications/read-all", token, nil), http.StatusOK, &updated)
	assert.Equal(t, int64(1), updated.Updated)

	testutil.Decode(t, api.Do(t, http.MethodGet, "/notifications/unread-count", token, nil), http.StatusOK, &count)
	assert.Zero(t, count.Count)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	w := testutil.NewWorld(t)
	svc := notification.NewService(w.Repos.Notifications, w.Repos.Users, email.NewLogService(), messaging.NewMemoryBroker(), config.NotificationConfig{}, nil)
	api := testutil.NewAPI(t)
	api.Mount(NewHandler(svc, api.Auth))

	require.NoError(t, svc.Notify(context.Background(), model.Message{UserID: w.ClinicUser.ID, Type: "appointment", Subject: "New booking"}))
	items, _, err := svc.Inbox(context.Background(), w.ClinicUser.ID, false, model.Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)

	token := api.Token(t, w.PatientActor())
	rec := api.Do(t, http.MethodPost, "/notifications/"+items[0].ID.String()+"/read", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.Do(t, http.MethodPost, "/notifications/"+uuid.NewString()+"/read", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.Do(t, http.MethodPost, "/notifications/not-a-uuid/read", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
