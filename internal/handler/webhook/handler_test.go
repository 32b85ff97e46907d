package webhook

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/pkg/errors"
)

type fakeProcessor struct {
	err    error
	header string
	body   []byte
}

func (f *fakeProcessor) HandleAdyenWebhook(_ context.Context, body []byte) error {
	f.body = body
	return f.err
}

func (f *fakeProcessor) HandlePayMongoWebhook(_ context.Context, header string, body []byte) error {
	f.header, f.body = header, body
	return f.err
}

func serve(p Processor, path string, header http.Header, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.ErrorHandler())
	NewHandler(p).RegisterRoutes(engine.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+path, bytes.NewBufferString(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAdyenAcknowledges(t *testing.T) {
	p := &fakeProcessor{}
	body := `{"live":"false","notificationItems":[]}`

	rec := serve(p, "adyen", nil, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[accepted]", rec.Body.String())
	assert.Equal(t, body, string(p.body), "raw body reaches the verifier untouched")
}

func TestPayMongoPassesSignatureHeader(t *testing.T) {
	p := &fakeProcessor{}
	header := http.Header{}
	header.Set(PayMongoSignatureHeader, "t=1,te=abc,li=")

	rec := serve(p, "paymongo", header, `{"data":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, "t=1,te=abc,li=", p.header)
}

func TestWebhookErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.Unauthorized("invalid signature", nil), http.StatusUnauthorized},
		{errors.BadRequest("malformed payload", nil), http.StatusBadRequest},
		{errors.Internal(context.DeadlineExceeded), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := serve(&fakeProcessor{err: tc.err}, "adyen", nil, `{}`)
		assert.Equal(t, tc.status, rec.Code)
		assert.NotContains(t, rec.Body.String(), "[accepted]")
	}
}
