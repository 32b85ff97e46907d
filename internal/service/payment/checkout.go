package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/payment/adyen"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/pkg/errors"
)

type checkout struct {
	patient *model.Patient
	apt     *model.Appointment
	txn     *model.Transaction
}

// begin checks the appointment can be paid for by actor and stores a new
// pending transaction for the attempt.
func (s *Service) begin(ctx context.Context, actor model.Actor, appointmentID uuid.UUID, provider model.Provider, method string) (*checkout, error) {
	if !actor.Is(model.RolePatient) {
		return nil, errors.Forbidden("only patients can pay for appointments")
	}
	patient, err := s.patientRepo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Forbidden("no patient profile")
		}
		return nil, errors.Internal(err)
	}
	apt, err := s.appointmentRepo.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("appointment", err)
		}
		return nil, errors.Internal(err)
	}
	if apt.PatientID != patient.ID {
		return nil, errors.Forbidden("not your appointment")
	}

	switch {
	case apt.Status != model.AppointmentStatusPending && apt.Status != model.AppointmentStatusConfirmed:
		return nil, errors.Unprocessable(fmt.Sprintf("cannot pay for a %s appointment", apt.Status), nil)
	case apt.PaymentStatus != model.PaymentStatusUnpaid && apt.PaymentStatus != model.PaymentStatusFailed:
		return nil, errors.Unprocessable(fmt.Sprintf("appointment payment is %s", apt.PaymentStatus), nil)
	case apt.FeeAmount <= 0:
		return nil, errors.Unprocessable("appointment has no fee to pay", nil)
	}

	attempts, err := s.txnRepo.CountByAppointment(ctx, apt.ID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	txn := &model.Transaction{
		Base:              model.Base{ID: uuid.New()},
		AppointmentID:     apt.ID,
		PatientID:         apt.PatientID,
		ClinicID:          apt.ClinicID,
		Provider:          provider,
		MerchantReference: MerchantReference(apt.ID, attempts+1),
		Amount:            apt.FeeAmount,
		Currency:          apt.Currency,
		Method:            method,
		Status:            model.TransactionStatusPending,
	}
	if err := s.txnRepo.Create(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("another checkout is in progress for this appointment", err)
		}
		return nil, errors.Internal(err)
	}
	return &checkout{patient: patient, apt: apt, txn: txn}, nil
}

// started records the provider handle and moves the appointment payment to
// pending. The notification may already have settled the transaction, which
// is not an error.
func (s *Service) started(ctx context.Context, co *checkout) error {
	if err := s.txnRepo.MarkStarted(ctx, co.txn); err != nil {
		s.observeCheckout(co.txn.Provider, "error")
		return errors.Internal(err)
	}
	s.observeCheckout(co.txn.Provider, "started")
	log.Info().
		Str("transaction_id", co.txn.ID.String()).
		Str("provider", string(co.txn.Provider)).
		Str("reference", co.txn.MerchantReference).
		Str("status", string(co.txn.Status)).
		Msg("checkout started")
	return nil
}

// providerFailed marks the attempt failed and maps the error to 502.
func (s *Service) providerFailed(ctx context.Context, co *checkout, cause error) error {
	s.observeCheckout(co.txn.Provider, "provider_error")
	if err := s.txnRepo.MarkFailed(ctx, co.txn.ID, cause.Error()); err != nil {
		log.Error().Err(err).Str("transaction_id", co.txn.ID.String()).Msg("failed to mark transaction failed")
	}
	log.Warn().Err(cause).
		Str("transaction_id", co.txn.ID.String()).
		Str("provider", string(co.txn.Provider)).
		Msg("payment provider call failed")
	return errors.BadGateway("payment provider unavailable, please try again", cause)
}

func (s *Service) observeCheckout(provider model.Provider, result string) {
	if s.metrics != nil {
		s.metrics.CheckoutsStarted.WithLabelValues(string(provider), result).Inc()
	}
}

func (co *checkout) response() *model.CheckoutResponse {
	resp := &model.CheckoutResponse{
		TransactionID: co.txn.ID,
		Provider:      co.txn.Provider,
		Reference:     co.txn.MerchantReference,
		Amount:        co.txn.Amount,
		Currency:      co.txn.Currency,
	}
	if co.txn.CheckoutURL != nil {
		resp.CheckoutURL = *co.txn.CheckoutURL
	}
	return resp
}

// StartAdyenSession opens a Checkout session for the drop-in.
func (s *Service) StartAdyenSession(ctx context.Context, actor model.Actor, req *model.AdyenSessionRequest) (*model.CheckoutResponse, error) {
	co, err := s.begin(ctx, actor, req.AppointmentID, model.ProviderAdyen, "card")
	if err != nil {
		return nil, err
	}
	session, err := s.adyen.CreateSession(ctx,
		adyen.Amount{Value: co.txn.Amount, Currency: co.txn.Currency},
		co.txn.MerchantReference, req.ReturnURL, co.patient.ID.String(), co.patient.Email)
	if err != nil {
		return nil, s.providerFailed(ctx, co, err)
	}

	co.txn.ProviderReference = &session.ID
	if err := s.started(ctx, co); err != nil {
		return nil, err
	}
	resp := co.response()
	resp.SessionID = session.ID
	resp.SessionData = session.SessionData
	return resp, nil
}

// MakeAdyenPayment forwards a drop-in payment. A refused payment ends the
// attempt without touching the appointment.
func (s *Service) MakeAdyenPayment(ctx context.Context, actor model.Actor, req *model.AdyenPaymentRequest) (*model.CheckoutResponse, error) {
	method, _ := req.PaymentMethod["type"].(string)
	co, err := s.begin(ctx, actor, req.AppointmentID, model.ProviderAdyen, method)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"paymentMethod": req.PaymentMethod}
	if req.BrowserInfo != nil {
		payload["browserInfo"] = req.BrowserInfo
	}
	if req.Channel != "" {
		payload["channel"] = req.Channel
	}
	out, err := s.adyen.MakePayment(ctx, payload,
		adyen.Amount{Value: co.txn.Amount, Currency: co.txn.Currency},
		co.txn.MerchantReference, req.ReturnURL)
	if err != nil {
		return nil, s.providerFailed(ctx, co, err)
	}

	result := adyen.Summarize(out)
	resp := co.response()
	resp.ProviderData = out
	if result.ResultCode == adyen.ResultRefused || result.ResultCode == adyen.ResultError {
		reason := result.RefusalReason
		if reason == "" {
			reason = result.ResultCode
		}
		s.observeCheckout(model.ProviderAdyen, "refused")
		// the notification may have failed it already
		if err := s.txnRepo.MarkFailed(ctx, co.txn.ID, reason); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Internal(err)
		}
		return resp, nil
	}

	if result.PspReference != "" {
		co.txn.ProviderReference = &result.PspReference
	}
	if err := s.started(ctx, co); err != nil {
		return nil, err
	}
	return resp, nil
}

// AdyenPaymentDetails forwards the additional details step (3DS, redirects)
// for one of the caller's own pending Adyen transactions. The outcome is
// applied when the AUTHORISATION notification arrives.
func (s *Service) AdyenPaymentDetails(ctx context.Context, actor model.Actor, req *model.AdyenDetailsRequest) (map[string]interface{}, error) {
	if !actor.Is(model.RolePatient) {
		return nil, errors.Forbidden("only patients can pay for appointments")
	}
	txn, err := s.GetTransaction(ctx, actor, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn.Provider != model.ProviderAdyen || txn.Status != model.TransactionStatusPending {
		return nil, errors.Unprocessable(fmt.Sprintf("%s %s transaction has no details step", txn.Status, txn.Provider), nil)
	}

	payload := map[string]interface{}{"details": req.Details}
	if req.PaymentData != "" {
		payload["paymentData"] = req.PaymentData
	}
	out, err := s.adyen.PaymentDetails(ctx, payload)
	if err != nil {
		return nil, errors.BadGateway("payment provider unavailable, please try again", err)
	}
	if ref, _ := out["merchantReference"].(string); ref != "" && ref != txn.MerchantReference {
		log.Warn().
			Str("transaction_id", txn.ID.String()).
			Str("reference", ref).
			Msg("payment details belong to another transaction")
		return nil, errors.Forbidden("payment details do not match this transaction")
	}
	return out, nil
}

// StartGCash creates a PayMongo GCash source and returns its checkout URL.
// The charge itself is created when the source becomes chargeable.
func (s *Service) StartGCash(ctx context.Context, actor model.Actor, req *model.GCashCheckoutRequest) (*model.CheckoutResponse, error) {
	co, err := s.begin(ctx, actor, req.AppointmentID, model.ProviderPayMongo, "gcash")
	if err != nil {
		return nil, err
	}
	src, err := s.paymongo.CreateGCashSource(ctx, co.txn.Amount, co.txn.Currency,
		co.txn.MerchantReference, req.SuccessURL, req.FailedURL)
	if err != nil {
		return nil, s.providerFailed(ctx, co, err)
	}

	co.txn.ProviderReference = &src.ID
	checkoutURL := src.Attributes.Redirect.CheckoutURL
	co.txn.CheckoutURL = &checkoutURL
	if err := s.started(ctx, co); err != nil {
		return nil, err
	}
	return co.response(), nil
}
