// Package event builds the payloads published through the outbox.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
)

type AppointmentPayload struct {
	AppointmentID  uuid.UUID               `json:"appointment_id"`
	PatientID      uuid.UUID               `json:"patient_id"`
	ClinicID       uuid.UUID               `json:"clinic_id"`
	DoctorID       uuid.UUID               `json:"doctor_id"`
	Status         model.AppointmentStatus `json:"status"`
	PreviousStatus model.AppointmentStatus `json:"previous_status,omitempty"`
	PaymentStatus  model.PaymentStatus     `json:"payment_status"`
	StartTime      time.Time               `json:"start_time"`
	EndTime        time.Time               `json:"end_time"`
	ActorID        *uuid.UUID              `json:"actor_id,omitempty"`
}

type PaymentPayload struct {
	TransactionID     uuid.UUID               `json:"transaction_id"`
	AppointmentID     uuid.UUID               `json:"appointment_id"`
	Provider          model.Provider          `json:"provider"`
	MerchantReference string                  `json:"merchant_reference"`
	Status            model.TransactionStatus `json:"status"`
	Amount            int64                   `json:"amount"`
	Currency          string                  `json:"currency"`
	Reason            string                  `json:"reason,omitempty"`
}

type ClinicPayload struct {
	ClinicID       uuid.UUID          `json:"clinic_id"`
	UserID         uuid.UUID          `json:"user_id"`
	Name           string             `json:"name"`
	Status         model.ClinicStatus `json:"status"`
	PreviousStatus model.ClinicStatus `json:"previous_status,omitempty"`
	RiskLevel      string             `json:"risk_level,omitempty"`
	Reason         string             `json:"reason,omitempty"`
}

func Appointment(eventType string, apt *model.Appointment, previous model.AppointmentStatus, actorID uuid.UUID) (*model.OutboxEvent, error) {
	p := AppointmentPayload{
		AppointmentID:  apt.ID,
		PatientID:      apt.PatientID,
		ClinicID:       apt.ClinicID,
		DoctorID:       apt.DoctorID,
		Status:         apt.Status,
		PreviousStatus: previous,
		PaymentStatus:  apt.PaymentStatus,
		StartTime:      apt.StartTime,
		EndTime:        apt.EndTime,
	}
	if actorID != uuid.Nil {
		p.ActorID = &actorID
	}
	return model.NewOutboxEvent(eventType, p)
}

func Payment(eventType string, txn *model.Transaction) (*model.OutboxEvent, error) {
	p := PaymentPayload{
		TransactionID:     txn.ID,
		AppointmentID:     txn.AppointmentID,
		Provider:          txn.Provider,
		MerchantReference: txn.MerchantReference,
		Status:            txn.Status,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
	}
	if txn.FailureReason != nil {
		p.Reason = *txn.FailureReason
	}
	return model.NewOutboxEvent(eventType, p)
}

func Clinic(eventType string, c *model.Clinic, previous model.ClinicStatus) (*model.OutboxEvent, error) {
	p := ClinicPayload{
		ClinicID:       c.ID,
		UserID:         c.UserID,
		Name:           c.Name,
		Status:         c.Status,
		PreviousStatus: previous,
		RiskLevel:      c.RiskLevel,
	}
	if c.RejectionReason != nil {
		p.Reason = *c.RejectionReason
	}
	return model.NewOutboxEvent(eventType, p)
}

type ReviewPayload struct {
	ReviewID      uuid.UUID `json:"review_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	ClinicID      uuid.UUID `json:"clinic_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Rating        int       `json:"rating"`
}

func Review(r *model.Review) ReviewPayload {
	return ReviewPayload{
		ReviewID:      r.ID,
		AppointmentID: r.AppointmentID,
		ClinicID:      r.ClinicID,
		DoctorID:      r.DoctorID,
		Rating:        r.Rating,
	}
}

// PrescriptionPayload leaves out the clinical content.
type PrescriptionPayload struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ClinicID       uuid.UUID `json:"clinic_id"`
	IssuedAt       time.Time `json:"issued_at"`
}

func Prescription(p *model.Prescription) (*model.OutboxEvent, error) {
	return model.NewOutboxEvent(model.EventPrescriptionIssued, PrescriptionPayload{
		PrescriptionID: p.ID,
		AppointmentID:  p.AppointmentID,
		PatientID:      p.PatientID,
		ClinicID:       p.ClinicID,
		IssuedAt:       p.IssuedAt,
	})
}
