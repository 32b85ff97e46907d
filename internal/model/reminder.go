package model

import (
	"time"

	"github.com/google/uuid"
)

type ReminderStatus string

const (
	ReminderStatusScheduled ReminderStatus = "scheduled"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// ReminderOffsets are sent ahead of a confirmed appointment, largest first.
var ReminderOffsets = []struct {
	Label  string
	Before time.Duration
}{
	{Label: "24h", Before: 24 * time.Hour},
	{Label: "1h", Before: time.Hour},
}

type Reminder struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	AppointmentID uuid.UUID      `db:"appointment_id" json:"appointment_id"`
	RemindAt      time.Time      `db:"remind_at" json:"remind_at"`
	Offset        string         `db:"offset_label" json:"offset"`
	Status        ReminderStatus `db:"status" json:"status"`
	SentAt        *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}
