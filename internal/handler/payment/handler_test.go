package payment

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/payment/adyen"
	"github.com/igabaycare/care-api/internal/payment/paymongo"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/payment"
	"github.com/igabaycare/care-api/internal/testutil"
	"github.com/igabaycare/care-api/pkg/idempotency"
)

type gcashOnly struct {
	payment.AdyenGateway
}

type fakePayMongo struct{}

func (fakePayMongo) CreateGCashSource(_ context.Context, amount int64, currency, reference, _, _ string) (*paymongo.Source, error) {
	return &paymongo.Source{
		ID: "src_" + reference,
		Attributes: paymongo.SourceAttributes{
			Amount:   amount,
			Currency: currency,
			Type:     "gcash",
			Redirect: paymongo.Redirect{CheckoutURL: "https://test-sources.paymongo.com/sources?id=src_" + reference},
		},
	}, nil
}

func (fakePayMongo) CreatePayment(context.Context, string, int64, string, string) (*paymongo.Payment, error) {
	return &paymongo.Payment{ID: "pay_1"}, nil
}

func setup(t *testing.T) (*testutil.API, *testutil.World) {
	w := testutil.NewWorld(t)
	svc := payment.NewService(payment.Deps{
		Transactions:     w.Repos.Transactions,
		Appointments:     w.Repos.Appointments,
		Patients:         w.Repos.Patients,
		Clinics:          w.Repos.Clinics,
		Adyen:            gcashOnly{},
		AdyenVerifier:    adyen.NewVerifier("00112233445566778899AABBCCDDEEFF"),
		PayMongo:         fakePayMongo{},
		PayMongoVerifier: paymongo.NewVerifier("whsk_test", false, 5*time.Minute),
		Dedup:            idempotency.NewMemoryStore(time.Minute),
		Notifier:         &testutil.Recorder{},
		Auditor:          audit.NewService(w.Repos.Audit),
	})

	api := testutil.NewAPI(t)
	api.Mount(NewHandler(svc, api.Auth))
	return api, w
}

func TestGCashCheckout(t *testing.T) {
	api, w := setup(t)
	apt := w.Appointment(t, time.Now().Add(48*time.Hour), model.AppointmentStatusPending, model.PaymentStatusUnpaid)
	body := map[string]interface{}{
		"appointment_id": apt.ID,
		"success_url":    "https://app.igabaycare.com/pay/success",
		"failed_url":     "https://app.igabaycare.com/pay/failed",
	}

	var resp model.CheckoutResponse
	rec := api.Do(t, http.MethodPost, "/payments/paymongo/gcash", api.Token(t, w.PatientActor()), body)
	testutil.Decode(t, rec, http.StatusCreated, &resp)
	assert.Equal(t, model.ProviderPayMongo, resp.Provider)
	assert.Equal(t, payment.MerchantReference(apt.ID, 1), resp.Reference)
	assert.Contains(t, resp.CheckoutURL, "src_"+resp.Reference)
	assert.EqualValues(t, 50000, resp.Amount)

	var txn model.Transaction
	rec = api.Do(t, http.MethodGet, "/payments/transactions/"+resp.TransactionID.String(), api.Token(t, w.ClinicActor()), nil)
	testutil.Decode(t, rec, http.StatusOK, &txn)
	assert.Equal(t, apt.ID, txn.AppointmentID)
}

func TestCheckoutRequiresPatient(t *testing.T) {
	api, w := setup(t)
	body := map[string]interface{}{"appointment_id": w.Doctor.ID, "return_url": "https://app.igabaycare.com/pay"}

	rec := api.Do(t, http.MethodPost, "/payments/adyen/sessions", api.Token(t, w.ClinicActor()), body)
	testutil.Decode(t, rec, http.StatusForbidden, nil)

	rec = api.Do(t, http.MethodPost, "/payments/adyen/sessions", "", body)
	testutil.Decode(t, rec, http.StatusUnauthorized, nil)

	rec = api.Do(t, http.MethodPost, "/payments/paymongo/gcash", api.Token(t, w.PatientActor()),
		map[string]interface{}{"appointment_id": w.Doctor.ID, "success_url": "not a url"})
	testutil.Decode(t, rec, http.StatusBadRequest, nil)
}
