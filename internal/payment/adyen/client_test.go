package adyen

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

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "test_key", r.Header.Get("X-API-Key"))

		var req SessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(150000), req.Amount.Value)
		assert.Equal(t, "IgabayCareECOM", req.MerchantAccount)
		assert.Equal(t, "IGC-1-1", req.Reference)

		w.Write([]byte(`{"id":"CS1","sessionData":"Ab02b4c0","reference":"IGC-1-1"}`))
	}))
	defer srv.Close()

	c := NewClient(config.AdyenConfig{BaseURL: srv.URL, APIKey: "test_key", MerchantAccount: "IgabayCareECOM"}, nil)
	session, err := c.CreateSession(context.Background(), Amount{Value: 150000, Currency: "PHP"}, "IGC-1-1", "https://app.igabaycare.com/return", "patient-1", "p@example.com")
	require.NoError(t, err)
	assert.Equal(t, "CS1", session.ID)
	assert.Equal(t, "Ab02b4c0", session.SessionData)
}

func TestMakePaymentForcesServerFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		amount := body["amount"].(map[string]interface{})
		assert.Equal(t, float64(50000), amount["value"])
		assert.Equal(t, "IGC-9-1", body["reference"])
		assert.Equal(t, "scheme", body["paymentMethod"].(map[string]interface{})["type"])
		w.Write([]byte(`{"pspReference":"PSP1","resultCode":"Authorised","merchantReference":"IGC-9-1"}`))
	}))
	defer srv.Close()

	c := NewClient(config.AdyenConfig{BaseURL: srv.URL, MerchantAccount: "M"}, nil)
	out, err := c.MakePayment(context.Background(), map[string]interface{}{
		"paymentMethod": map[string]interface{}{"type": "scheme"},
		"amount":        map[string]interface{}{"value": 1, "currency": "PHP"},
		"reference":     "spoofed",
	}, Amount{Value: 50000, Currency: "PHP"}, "IGC-9-1", "https://return")
	require.NoError(t, err)

	res := Summarize(out)
	assert.Equal(t, "PSP1", res.PspReference)
	assert.Equal(t, ResultAuthorised, res.ResultCode)
}
