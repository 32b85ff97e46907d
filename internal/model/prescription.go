package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Medication struct {
	Name      string `json:"name" binding:"required,max=200"`
	Dosage    string `json:"dosage" binding:"required,max=100"`
	Frequency string `json:"frequency" binding:"required,max=100"`
	Duration  string `json:"duration" binding:"max=100"`
}

// Medications is stored as a jsonb array.
type Medications []Medication

func (m Medications) Value() (driver.Value, error) {
	if m == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m)
}

func (m *Medications) Scan(src interface{}) error {
	return scanJSON(src, m)
}

type Prescription struct {
	Base
	AppointmentID uuid.UUID   `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID   `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	ClinicID      uuid.UUID   `db:"clinic_id" json:"clinic_id"`
	Diagnosis     string      `db:"diagnosis" json:"diagnosis"`
	Medications   Medications `db:"medications" json:"medications"`
	Instructions  string      `db:"instructions" json:"instructions,omitempty"`
	IssuedAt      time.Time   `db:"issued_at" json:"issued_at"`
}

type CreatePrescriptionRequest struct {
	AppointmentID uuid.UUID    `json:"appointment_id" binding:"required"`
	Diagnosis     string       `json:"diagnosis" binding:"required,max=2000"`
	Medications   []Medication `json:"medications" binding:"required,min=1,dive"`
	Instructions  string       `json:"instructions" binding:"max=4000"`
}
