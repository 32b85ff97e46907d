package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending  NotificationStatus = "pending"
	NotificationStatusSent     NotificationStatus = "sent"
	NotificationStatusFailed   NotificationStatus = "failed"
	NotificationStatusRetrying NotificationStatus = "retrying"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
)

const (
	NotificationAppointmentBooked   = "appointment_booked"
	NotificationAppointmentRequest  = "appointment_request"
	NotificationAppointmentStatus   = "appointment_status_changed"
	NotificationAppointmentMoved    = "appointment_rescheduled"
	NotificationAppointmentReminder = "appointment_reminder"
	NotificationPaymentReceived     = "payment_received"
	NotificationPaymentFailed       = "payment_failed"
	NotificationClinicStatus        = "clinic_status_changed"
	NotificationPrescriptionIssued  = "prescription_issued"
)

type Notification struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	UserID      uuid.UUID          `db:"user_id" json:"user_id"`
	Channel     Channel            `db:"channel" json:"channel"`
	Type        string             `db:"type" json:"type"`
	Subject     string             `db:"subject" json:"subject"`
	Content     string             `db:"content" json:"content"`
	Recipient   string             `db:"recipient" json:"-"`
	Status      NotificationStatus `db:"status" json:"status"`
	ReadAt      *time.Time         `db:"read_at" json:"read_at,omitempty"`
	RetryCount  int                `db:"retry_count" json:"-"`
	LastError   *string            `db:"last_error" json:"-"`
	NextRetryAt *time.Time         `db:"next_retry_at" json:"-"`
	SentAt      *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
	Metadata    JSONMap            `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// NotificationEvent is the realtime message published for in-app and push.
type NotificationEvent struct {
	ID             uuid.UUID `json:"id"`
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         uuid.UUID `json:"user_id"`
	Type           string    `json:"type"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	Metadata       JSONMap   `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message is a request to notify one user over one or more channels.
type Message struct {
	UserID   uuid.UUID
	Email    string
	Type     string
	Subject  string
	Content  string
	Channels []Channel
	Metadata JSONMap
}
