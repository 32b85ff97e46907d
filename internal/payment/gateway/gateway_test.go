package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/pkg/circuitbreaker"
	"github.com/igabaycare/care-api/pkg/metrics"
)

func TestPostDecodesAndAuthorizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"id":"CS123"}`))
	}))
	defer srv.Close()

	c := New(Config{
		Provider:  "adyen",
		BaseURL:   srv.URL,
		Authorize: func(req *http.Request) { req.Header.Set("X-API-Key", "secret") },
	}, metrics.NewMetrics("test", prometheus.NewRegistry()))

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Post(context.Background(), "create_session", "/sessions", map[string]string{"a": "b"}, &out))
	assert.Equal(t, "CS123", out.ID)
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid amount"}`))
	}))
	defer srv.Close()

	c := New(Config{Provider: "paymongo", BaseURL: srv.URL}, nil)
	for i := 0; i < 10; i++ {
		err := c.Post(context.Background(), "create_source", "/v1/sources", struct{}{}, nil)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.False(t, apiErr.Temporary())
	}
	assert.Equal(t, 10, calls)
	assert.Equal(t, circuitbreaker.StateClosed, c.breaker.State())
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{Provider: "adyen", BaseURL: srv.URL}, nil)
	for i := 0; i < 5; i++ {
		assert.Error(t, c.Post(context.Background(), "payments", "/payments", struct{}{}, nil))
	}
	err := c.Post(context.Background(), "payments", "/payments", struct{}{}, nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 5, calls)
}
