package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/payment/adyen"
	"github.com/igabaycare/care-api/internal/payment/paymongo"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/event"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/pkg/errors"
)

// HandleAdyenWebhook verifies and applies a notification batch. Nothing is
// changed when any item fails verification.
func (s *Service) HandleAdyenWebhook(ctx context.Context, body []byte) error {
	events, err := s.adyenVerifier.Parse(body)
	if err != nil {
		return s.rejected(model.ProviderAdyen, err, errors.Is(err, adyen.ErrMalformed))
	}
	for _, ev := range events {
		if err := s.process(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// HandlePayMongoWebhook verifies the Paymongo-Signature header and applies
// the event.
func (s *Service) HandlePayMongoWebhook(ctx context.Context, header string, body []byte) error {
	ev, err := s.paymongoVerifier.Parse(header, body)
	if err != nil {
		return s.rejected(model.ProviderPayMongo, err, errors.Is(err, paymongo.ErrMalformed))
	}
	return s.process(ctx, ev)
}

func (s *Service) rejected(provider model.Provider, err error, malformed bool) error {
	if malformed {
		s.observeWebhook(provider, "malformed")
		log.Warn().Err(err).Str("provider", string(provider)).Msg("malformed webhook")
		return errors.BadRequest("malformed webhook payload", err)
	}
	s.observeWebhook(provider, "rejected")
	log.Warn().Err(err).Str("provider", string(provider)).Msg("webhook signature rejected")
	return errors.Unauthorized("invalid webhook signature", err)
}

func (s *Service) observeWebhook(provider model.Provider, outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(string(provider), outcome).Inc()
	}
}

func dedupKey(ev *model.ProviderEvent) string {
	return fmt.Sprintf("webhook:%s:%s", ev.Provider, ev.EventID)
}

// process applies one verified event at most once. The unique
// (provider, event_id) row decides; the dedup store only remembers events
// that already committed, so a failed apply leaves nothing behind that
// would swallow the provider's retry.
func (s *Service) process(ctx context.Context, ev *model.ProviderEvent) error {
	logger := log.With().
		Str("provider", string(ev.Provider)).
		Str("event_id", ev.EventID).
		Str("event_type", ev.EventType).
		Str("reference", ev.Reference).
		Logger()

	key := dedupKey(ev)
	if s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Msg("webhook dedup unavailable, relying on database")
		} else if seen {
			s.observeWebhook(ev.Provider, "duplicate")
			logger.Debug().Msg("duplicate webhook delivery")
			return nil
		}
	}

	var paymentRef string
	if ev.Chargeable {
		ref, err := s.chargeSource(ctx, ev)
		if err != nil {
			logger.Error().Err(err).Msg("failed to charge gcash source")
			return errors.Internal(err)
		}
		paymentRef = ref
	}

	duplicate, effect, err := s.txnRepo.ApplyWebhookEvent(ctx, ev.Record(s.now().UTC()),
		func(txn *model.Transaction, apt *model.Appointment) (*model.PaymentEffect, error) {
			if ev.Chargeable {
				return charged(txn, paymentRef), nil
			}
			return Decide(ev, txn, apt)
		})
	if err != nil {
		s.observeWebhook(ev.Provider, string(model.WebhookOutcomeFailed))
		logger.Error().Err(err).Msg("failed to apply webhook")
		return errors.Internal(err)
	}
	s.remember(ctx, key)
	if duplicate {
		s.observeWebhook(ev.Provider, "duplicate")
		logger.Debug().Msg("webhook already recorded")
		return nil
	}

	s.observeWebhook(ev.Provider, string(effect.Outcome))
	logger.Info().Str("outcome", string(effect.Outcome)).Msg("webhook processed")
	if effect.Outcome == model.WebhookOutcomeApplied {
		s.afterApply(ctx, effect)
	}
	return nil
}

// dedupMarkTimeout bounds the mark after commit. It runs detached from the
// request so a deadline that fired during the apply does not skip it.
const dedupMarkTimeout = 2 * time.Second

func (s *Service) remember(ctx context.Context, key string) {
	if s.dedup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dedupMarkTimeout)
	defer cancel()
	if err := s.dedup.Mark(ctx, key, s.dedupTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to mark webhook as processed")
	}
}

// chargeSource creates the PayMongo payment for a chargeable GCash source.
// A source that was already charged returns the existing payment reference.
func (s *Service) chargeSource(ctx context.Context, ev *model.ProviderEvent) (string, error) {
	txn, err := s.txnRepo.FindByReference(ctx, ev.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if txn.PaymentReference != nil {
		return *txn.PaymentReference, nil
	}
	if txn.Status != model.TransactionStatusPending {
		return "", nil
	}

	p, err := s.paymongo.CreatePayment(ctx, ev.Reference, txn.Amount, txn.Currency,
		"IgabayCare appointment "+txn.MerchantReference)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func charged(txn *model.Transaction, paymentRef string) *model.PaymentEffect {
	if txn == nil || paymentRef == "" {
		return &model.PaymentEffect{Outcome: model.WebhookOutcomeIgnored}
	}
	updated := *txn
	updated.PaymentReference = &paymentRef
	return &model.PaymentEffect{Outcome: model.WebhookOutcomeApplied, Transaction: &updated}
}

// Decide computes what a verified provider event changes. Events for unknown
// references are ignored. Events older than the last applied one, or that
// would move the transaction backwards, are stale.
func Decide(ev *model.ProviderEvent, txn *model.Transaction, apt *model.Appointment) (*model.PaymentEffect, error) {
	if txn == nil || ev.Status == "" {
		return &model.PaymentEffect{Outcome: model.WebhookOutcomeIgnored}, nil
	}
	// an event without a provider time is never newer than one applied
	if txn.ProviderEventAt != nil && (ev.OccurredAt.IsZero() || ev.OccurredAt.Before(*txn.ProviderEventAt)) {
		return &model.PaymentEffect{Outcome: model.WebhookOutcomeStale}, nil
	}
	if !txn.Status.CanTransitionTo(ev.Status) {
		return &model.PaymentEffect{Outcome: model.WebhookOutcomeStale}, nil
	}

	t := *txn
	t.Status = ev.Status
	if !ev.OccurredAt.IsZero() {
		occurred := ev.OccurredAt
		t.ProviderEventAt = &occurred
	}
	if t.PaymentReference == nil && ev.PaymentRef != "" {
		ref := ev.PaymentRef
		t.PaymentReference = &ref
	}
	if ev.Status == model.TransactionStatusFailed {
		reason := ev.Reason
		if reason == "" {
			reason = "payment failed"
		}
		t.FailureReason = &reason
	}
	effect := &model.PaymentEffect{Outcome: model.WebhookOutcomeApplied, Transaction: &t}

	var a *model.Appointment
	if apt != nil {
		copied := *apt
		a = &copied
		effect.Appointment = a
	}

	var paymentEvent string
	switch ev.Status {
	case model.TransactionStatusPaid:
		paymentEvent = model.EventPaymentPaid
		if a != nil {
			prev := a.Status
			if a.Status == model.AppointmentStatusCancelled {
				a.PaymentStatus = model.PaymentStatusRefundPending
			} else {
				a.PaymentStatus = model.PaymentStatusPaid
			}
			if a.Status == model.AppointmentStatusPending {
				a.Status = model.AppointmentStatusConfirmed
				e, err := event.Appointment(model.EventAppointmentStatusChanged, a, prev, uuid.Nil)
				if err != nil {
					return nil, err
				}
				effect.Events = append(effect.Events, e)
			}
		}
	case model.TransactionStatusFailed:
		paymentEvent = model.EventPaymentFailed
		if a != nil && a.PaymentStatus != model.PaymentStatusPaid {
			a.PaymentStatus = model.PaymentStatusFailed
		}
	case model.TransactionStatusRefunded:
		paymentEvent = model.EventPaymentRefunded
		if a != nil {
			a.PaymentStatus = model.PaymentStatusRefunded
		}
	case model.TransactionStatusCancelled:
		if a != nil && a.PaymentStatus == model.PaymentStatusPending {
			a.PaymentStatus = model.PaymentStatusUnpaid
		}
	}

	if paymentEvent != "" {
		e, err := event.Payment(paymentEvent, &t)
		if err != nil {
			return nil, err
		}
		effect.Events = append(effect.Events, e)
	}
	return effect, nil
}

// afterApply runs the side effects of a committed payment change. Failures
// are logged; the provider has already been answered for.
func (s *Service) afterApply(ctx context.Context, effect *model.PaymentEffect) {
	txn, apt := effect.Transaction, effect.Appointment
	if txn == nil {
		return
	}
	_ = s.auditor.Log(ctx, uuid.Nil, model.AuditActionPayment, model.AuditEntityTransaction, txn.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": txn.Status, "provider": txn.Provider},
	})
	if apt == nil {
		return
	}

	if txn.Status == model.TransactionStatusPaid && apt.Status == model.AppointmentStatusConfirmed && s.reminders != nil {
		if err := s.reminders.Schedule(ctx, apt); err != nil {
			log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to schedule reminders")
		}
	}

	if txn.Status != model.TransactionStatusPaid && txn.Status != model.TransactionStatusFailed {
		return
	}
	parties, err := s.parties.ForAppointment(ctx, apt)
	if err != nil {
		log.Error().Err(err).Str("appointment_id", apt.ID.String()).Msg("failed to resolve payment recipients")
		return
	}
	amount := formatAmount(txn.Amount, txn.Currency)
	var msgs []model.Message
	if txn.Status == model.TransactionStatusPaid {
		msgs = append(msgs,
			parties.ToPatient(model.Message{
				Type:    model.NotificationPaymentReceived,
				Subject: "Payment received",
				Content: fmt.Sprintf("We received your payment of %s. Reference %s.", amount, txn.MerchantReference),
			}),
			parties.ToClinic(model.Message{
				Type:    model.NotificationPaymentReceived,
				Subject: "Appointment paid",
				Content: fmt.Sprintf("Payment of %s received for booking %s.", amount, txn.MerchantReference),
			}))
	} else {
		msgs = append(msgs, parties.ToPatient(model.Message{
			Type:    model.NotificationPaymentFailed,
			Subject: "Payment failed",
			Content: fmt.Sprintf("Your payment of %s did not go through. You can try again from your appointment.", amount),
		}))
	}
	notification.Send(ctx, s.notifier, msgs...)
}

// formatAmount renders minor units, e.g. 50000 PHP as "PHP 500.00".
func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}
