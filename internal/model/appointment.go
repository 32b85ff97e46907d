package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending    AppointmentStatus = "pending"
	AppointmentStatusConfirmed  AppointmentStatus = "confirmed"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
	AppointmentStatusNoShow     AppointmentStatus = "no_show"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:    {AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusConfirmed:  {AppointmentStatusInProgress, AppointmentStatusCancelled, AppointmentStatusNoShow},
	AppointmentStatusInProgress: {AppointmentStatusCompleted},
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return len(appointmentTransitions[s]) == 0
}

type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefundPending PaymentStatus = "refund_pending"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusNotRequired   PaymentStatus = "not_required"
	PaymentStatusPayAtClinic   PaymentStatus = "pay_at_clinic"
)

const (
	PaymentMethodOnline = "online"
	PaymentMethodCash   = "cash"
)

type Appointment struct {
	Base
	PatientID     uuid.UUID         `db:"patient_id" json:"patient_id"`
	ClinicID      uuid.UUID         `db:"clinic_id" json:"clinic_id"`
	DoctorID      uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	StartTime     time.Time         `db:"start_time" json:"start_time"`
	EndTime       time.Time         `db:"end_time" json:"end_time"`
	Type          string            `db:"type" json:"type"`
	Reason        string            `db:"reason" json:"reason,omitempty"`
	Notes         string            `db:"notes" json:"notes,omitempty"`
	Status        AppointmentStatus `db:"status" json:"status"`
	PaymentStatus PaymentStatus     `db:"payment_status" json:"payment_status"`
	PaymentMethod string            `db:"payment_method" json:"payment_method"`
	FeeAmount     int64             `db:"fee_amount" json:"fee_amount"`
	Currency      string            `db:"currency" json:"currency"`
	CancelReason  *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledBy   *uuid.UUID        `db:"cancelled_by" json:"cancelled_by,omitempty"`
}

// Overlaps reports whether [start, end) intersects the appointment.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime)
}

// BlocksSlot reports whether the appointment still occupies its doctor's time.
func (a *Appointment) BlocksSlot() bool {
	return a.Status != AppointmentStatusCancelled && a.Status != AppointmentStatusNoShow
}

type CreateAppointmentRequest struct {
	ClinicID      uuid.UUID  `json:"clinic_id" binding:"required"`
	DoctorID      uuid.UUID  `json:"doctor_id" binding:"required"`
	StartTime     time.Time  `json:"start_time" binding:"required"`
	EndTime       *time.Time `json:"end_time"`
	Type          string     `json:"type" binding:"required,oneof=consultation follow_up check_up emergency"`
	Reason        string     `json:"reason" binding:"max=1000"`
	PaymentMethod string     `json:"payment_method" binding:"omitempty,oneof=online cash"`
}

type RescheduleRequest struct {
	StartTime time.Time  `json:"start_time" binding:"required"`
	EndTime   *time.Time `json:"end_time"`
}

type StatusChangeRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=confirmed in_progress completed cancelled no_show"`
	Reason string            `json:"reason" binding:"max=1000"`
	Notes  string            `json:"notes" binding:"max=2000"`
}

type CancelRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type AppointmentFilter struct {
	PatientID *uuid.UUID
	ClinicID  *uuid.UUID
	DoctorID  *uuid.UUID
	Status    AppointmentStatus
	From      *time.Time
	To        *time.Time
}
