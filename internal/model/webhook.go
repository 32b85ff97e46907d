package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookOutcome string

const (
	WebhookOutcomeApplied WebhookOutcome = "applied"
	WebhookOutcomeStale   WebhookOutcome = "stale"
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
	WebhookOutcomeFailed  WebhookOutcome = "failed"
)

// WebhookEvent is the durable record of a provider delivery. The pair
// (provider, event_id) is unique.
type WebhookEvent struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Provider    Provider        `db:"provider" json:"provider"`
	EventID     string          `db:"event_id" json:"event_id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Reference   string          `db:"reference" json:"reference"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
	ReceivedAt  time.Time       `db:"received_at" json:"received_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	Outcome     *WebhookOutcome `db:"outcome" json:"outcome,omitempty"`
}

// ProviderEvent is a verified provider notification normalised to our terms.
// Reference locates the transaction by merchant, provider or payment
// reference. Chargeable marks a PayMongo source that must now be charged.
type ProviderEvent struct {
	Provider   Provider
	EventID    string
	EventType  string
	Reference  string
	Status     TransactionStatus
	Chargeable bool
	Amount     int64
	Currency   string
	Reason     string
	PaymentRef string
	OccurredAt time.Time
	Raw        json.RawMessage
}

func (e *ProviderEvent) Record(now time.Time) *WebhookEvent {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	return &WebhookEvent{
		ID:         uuid.New(),
		Provider:   e.Provider,
		EventID:    e.EventID,
		EventType:  e.EventType,
		Reference:  e.Reference,
		Payload:    e.Raw,
		OccurredAt: occurred,
		ReceivedAt: now,
	}
}

// PaymentEffect is what applying one provider event decided to persist.
// Nil entities are left untouched.
type PaymentEffect struct {
	Outcome     WebhookOutcome
	Transaction *Transaction
	Appointment *Appointment
	Events      []*OutboxEvent
}
