// Package adyen talks to the Adyen Checkout API (v71) and validates its
// standard notification webhooks.
package adyen

import (
	"context"
	"net/http"

	"github.com/igabaycare/care-api/internal/config"
	"github.com/igabaycare/care-api/internal/payment/gateway"
	"github.com/igabaycare/care-api/pkg/metrics"
)

type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

type SessionRequest struct {
	Amount           Amount `json:"amount"`
	Reference        string `json:"reference"`
	ReturnURL        string `json:"returnUrl"`
	MerchantAccount  string `json:"merchantAccount"`
	CountryCode      string `json:"countryCode,omitempty"`
	ShopperReference string `json:"shopperReference,omitempty"`
	ShopperEmail     string `json:"shopperEmail,omitempty"`
}

type Session struct {
	ID          string `json:"id"`
	SessionData string `json:"sessionData"`
	Reference   string `json:"reference"`
	ExpiresAt   string `json:"expiresAt"`
}

// PaymentResult is the subset of /payments and /payments/details responses
// the API inspects; the raw body is returned to the client untouched.
type PaymentResult struct {
	PspReference      string
	ResultCode        string
	RefusalReason     string
	MerchantReference string
}

// Result codes that end the payment attempt.
const (
	ResultAuthorised = "Authorised"
	ResultRefused    = "Refused"
	ResultError      = "Error"
	ResultCancelled  = "Cancelled"
)

func Summarize(out map[string]interface{}) PaymentResult {
	str := func(k string) string {
		s, _ := out[k].(string)
		return s
	}
	return PaymentResult{
		PspReference:      str("pspReference"),
		ResultCode:        str("resultCode"),
		RefusalReason:     str("refusalReason"),
		MerchantReference: str("merchantReference"),
	}
}

type Client struct {
	api             *gateway.Client
	merchantAccount string
}

func NewClient(cfg config.AdyenConfig, m *metrics.Metrics) *Client {
	return &Client{
		api: gateway.New(gateway.Config{
			Provider: "adyen",
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
			Authorize: func(req *http.Request) {
				req.Header.Set("X-API-Key", cfg.APIKey)
			},
		}, m),
		merchantAccount: cfg.MerchantAccount,
	}
}

func (c *Client) CreateSession(ctx context.Context, amount Amount, reference, returnURL, shopperRef, shopperEmail string) (*Session, error) {
	req := SessionRequest{
		Amount:           amount,
		Reference:        reference,
		ReturnURL:        returnURL,
		MerchantAccount:  c.merchantAccount,
		CountryCode:      "PH",
		ShopperReference: shopperRef,
		ShopperEmail:     shopperEmail,
	}
	var session Session
	if err := c.api.Post(ctx, "create_session", "/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// MakePayment forwards the drop-in payload with amount, reference and
// merchant account forced server-side.
func (c *Client) MakePayment(ctx context.Context, payload map[string]interface{}, amount Amount, reference, returnURL string) (map[string]interface{}, error) {
	body := make(map[string]interface{}, len(payload)+4)
	for k, v := range payload {
		body[k] = v
	}
	body["amount"] = amount
	body["reference"] = reference
	body["merchantAccount"] = c.merchantAccount
	body["returnUrl"] = returnURL

	var out map[string]interface{}
	if err := c.api.Post(ctx, "make_payment", "/payments", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PaymentDetails(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.api.Post(ctx, "payment_details", "/payments/details", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}
