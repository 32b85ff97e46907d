package model

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderAdyen    Provider = "adyen"
	ProviderPayMongo Provider = "paymongo"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusAuthorized TransactionStatus = "authorized"
	TransactionStatusPaid       TransactionStatus = "paid"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusAuthorized, TransactionStatusPaid, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusAuthorized: {TransactionStatusPaid, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusPaid:       {TransactionStatusRefunded},
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Transaction struct {
	Base
	AppointmentID     uuid.UUID         `db:"appointment_id" json:"appointment_id"`
	PatientID         uuid.UUID         `db:"patient_id" json:"patient_id"`
	ClinicID          uuid.UUID         `db:"clinic_id" json:"clinic_id"`
	Provider          Provider          `db:"provider" json:"provider"`
	ProviderReference *string           `db:"provider_reference" json:"provider_reference,omitempty"`
	PaymentReference  *string           `db:"payment_reference" json:"payment_reference,omitempty"`
	MerchantReference string            `db:"merchant_reference" json:"merchant_reference"`
	Amount            int64             `db:"amount" json:"amount"`
	Currency          string            `db:"currency" json:"currency"`
	Method            string            `db:"method" json:"method"`
	Status            TransactionStatus `db:"status" json:"status"`
	FailureReason     *string           `db:"failure_reason" json:"failure_reason,omitempty"`
	CheckoutURL       *string           `db:"checkout_url" json:"checkout_url,omitempty"`
	ProviderEventAt   *time.Time        `db:"provider_event_at" json:"-"`
}

type AdyenSessionRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
	ReturnURL     string    `json:"return_url" binding:"required,url"`
}

// AdyenPaymentRequest proxies the drop-in component payload. Amount and
// reference are always filled server-side from the appointment.
type AdyenPaymentRequest struct {
	AppointmentID uuid.UUID              `json:"appointment_id" binding:"required"`
	ReturnURL     string                 `json:"return_url" binding:"required,url"`
	PaymentMethod map[string]interface{} `json:"paymentMethod" binding:"required"`
	BrowserInfo   map[string]interface{} `json:"browserInfo,omitempty"`
	Channel       string                 `json:"channel,omitempty"`
}

type AdyenDetailsRequest struct {
	TransactionID uuid.UUID              `json:"transaction_id" binding:"required"`
	Details       map[string]interface{} `json:"details" binding:"required"`
	PaymentData   string                 `json:"paymentData,omitempty"`
}

type GCashCheckoutRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id" binding:"required"`
	SuccessURL    string    `json:"success_url" binding:"required,url"`
	FailedURL     string    `json:"failed_url" binding:"required,url"`
}

type CheckoutResponse struct {
	TransactionID uuid.UUID              `json:"transaction_id"`
	Provider      Provider               `json:"provider"`
	Reference     string                 `json:"merchant_reference"`
	Amount        int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
	CheckoutURL   string                 `json:"checkout_url,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	SessionData   string                 `json:"session_data,omitempty"`
	ProviderData  map[string]interface{} `json:"provider_data,omitempty"`
}
