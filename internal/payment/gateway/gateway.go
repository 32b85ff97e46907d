// Package gateway is the JSON-over-HTTPS transport shared by payment
// provider clients.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/igabaycare/care-api/pkg/circuitbreaker"
	"github.com/igabaycare/care-api/pkg/metrics"
)

const maxResponseBytes = 1 << 20

// APIError is a non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the provider failed rather than rejected us.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type Config struct {
	Provider string
	BaseURL  string
	Timeout  time.Duration
	// Authorize sets credentials on every request.
	Authorize func(req *http.Request)
}

type Client struct {
	config  Config
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func New(config Config, m *metrics.Metrics) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        config.Provider,
			MaxFailures: 5,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
		}),
		metrics: m,
	}
}

// Post sends in as JSON and decodes the response into out. Only transport
// errors and temporary provider errors count against the circuit breaker.
func (c *Client) Post(ctx context.Context, operation, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	var rejected error
	err = c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.config.Authorize != nil {
			c.config.Authorize(req)
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		c.observe(operation, start)
		if err != nil {
			return fmt.Errorf("%s %s: %w", c.config.Provider, operation, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read %s response: %w", operation, err)
		}

		if resp.StatusCode >= 300 {
			apiErr := &APIError{Provider: c.config.Provider, StatusCode: resp.StatusCode, Body: string(body)}
			if apiErr.Temporary() {
				return apiErr
			}
			rejected = apiErr
			return nil
		}

		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				rejected = fmt.Errorf("failed to decode %s response: %w", operation, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return rejected
}

func (c *Client) observe(operation string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProviderLatency.WithLabelValues(c.config.Provider, operation).Observe(time.Since(start).Seconds())
}
