// Package paymongo creates GCash sources and payments on PayMongo and
// validates its webhook signatures.
package paymongo

import (
	"context"
	"net/http"

	"github.com/igabaycare/care-api/internal/config"
	"github.com/igabaycare/care-api/internal/payment/gateway"
	"github.com/igabaycare/care-api/pkg/metrics"
)

type Redirect struct {
	CheckoutURL string `json:"checkout_url,omitempty"`
	Success     string `json:"success"`
	Failed      string `json:"failed"`
}

type SourceAttributes struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Type     string            `json:"type"`
	Status   string            `json:"status,omitempty"`
	Redirect Redirect          `json:"redirect"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Source struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Attributes SourceAttributes `json:"attributes"`
}

type SourceRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type PaymentAttributes struct {
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	Status        string            `json:"status,omitempty"`
	Source        *SourceRef        `json:"source,omitempty"`
	FailedMessage string            `json:"failed_message,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type Payment struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes PaymentAttributes `json:"attributes"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type request[T any] struct {
	Data struct {
		Attributes T `json:"attributes"`
	} `json:"data"`
}

type Client struct {
	api *gateway.Client
}

func NewClient(cfg config.PayMongoConfig, m *metrics.Metrics) *Client {
	return &Client{
		api: gateway.New(gateway.Config{
			Provider: "paymongo",
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
			Authorize: func(req *http.Request) {
				req.SetBasicAuth(cfg.SecretKey, "")
			},
		}, m),
	}
}

// CreateGCashSource returns a source whose checkout URL the patient is
// redirected to. reference is echoed back in metadata.
func (c *Client) CreateGCashSource(ctx context.Context, amount int64, currency, reference, successURL, failedURL string) (*Source, error) {
	var req request[SourceAttributes]
	req.Data.Attributes = SourceAttributes{
		Amount:   amount,
		Currency: currency,
		Type:     "gcash",
		Redirect: Redirect{Success: successURL, Failed: failedURL},
		Metadata: map[string]string{"reference": reference},
	}

	var out envelope[Source]
	if err := c.api.Post(ctx, "create_source", "/v1/sources", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// CreatePayment charges a chargeable source.
func (c *Client) CreatePayment(ctx context.Context, sourceID string, amount int64, currency, description string) (*Payment, error) {
	var req request[PaymentAttributes]
	req.Data.Attributes = PaymentAttributes{
		Amount:      amount,
		Currency:    currency,
		Description: description,
		Source:      &SourceRef{ID: sourceID, Type: "source"},
	}

	var out envelope[Payment]
	if err := c.api.Post(ctx, "create_payment", "/v1/payments", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}
