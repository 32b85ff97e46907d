package paymongo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igabaycare/care-api/internal/config"
)

func TestCreateGCashSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sources", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test_1", user)

		var req request[SourceAttributes]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gcash", req.Data.Attributes.Type)
		assert.Equal(t, int64(50000), req.Data.Attributes.Amount)
		assert.Equal(t, "IGC-1-1", req.Data.Attributes.Metadata["reference"])

		w.Write([]byte(`{"data":{"id":"src_123","type":"source","attributes":{"amount":50000,"currency":"PHP","type":"gcash","status":"pending","redirect":{"checkout_url":"https://pm.link/gcash/src_123","success":"s","failed":"f"}}}}`))
	}))
	defer srv.Close()

	c := NewClient(config.PayMongoConfig{BaseURL: srv.URL, SecretKey: "sk_test_1"}, nil)
	src, err := c.CreateGCashSource(context.Background(), 50000, "PHP", "IGC-1-1", "https://ok", "https://fail")
	require.NoError(t, err)
	assert.Equal(t, "src_123", src.ID)
	assert.Equal(t, "https://pm.link/gcash/src_123", src.Attributes.Redirect.CheckoutURL)
}

func TestCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments", r.URL.Path)
		var req request[PaymentAttributes]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Data.Attributes.Source)
		assert.Equal(t, "src_123", req.Data.Attributes.Source.ID)
		assert.Equal(t, "source", req.Data.Attributes.Source.Type)
		w.Write([]byte(`{"data":{"id":"pay_9","type":"payment","attributes":{"amount":50000,"currency":"PHP","status":"paid"}}}`))
	}))
	defer srv.Close()

	c := NewClient(config.PayMongoConfig{BaseURL: srv.URL, SecretKey: "sk"}, nil)
	p, err := c.CreatePayment(context.Background(), "src_123", 50000, "PHP", "Consultation")
	require.NoError(t, err)
	assert.Equal(t, "pay_9", p.ID)
	assert.Equal(t, "paid", p.Attributes.Status)
}
