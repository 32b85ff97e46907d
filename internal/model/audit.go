package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate       = "create"
	AuditActionUpdate       = "update"
	AuditActionStatusChange = "status_change"
	AuditActionLogin        = "login"
	AuditActionPayment      = "payment"
	AuditActionView         = "view"

	// Entity types
	AuditEntityUser         = "user"
	AuditEntityPatient      = "patient"
	AuditEntityClinic       = "clinic"
	AuditEntityDoctor       = "doctor"
	AuditEntityAppointment  = "appointment"
	AuditEntityTransaction  = "transaction"
	AuditEntityPrescription = "prescription"
)

type AuditFilter struct {
	UserID     *uuid.UUID
	EntityType string
	EntityID   *uuid.UUID
	Action     string
	From       *time.Time
	To         *time.Time
}
