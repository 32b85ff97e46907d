package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Patient struct {
	Base
	UserID                uuid.UUID      `db:"user_id" json:"user_id"`
	FirstName             string         `db:"first_name" json:"first_name"`
	LastName              string         `db:"last_name" json:"last_name"`
	Email                 string         `db:"email" json:"email"`
	Phone                 string         `db:"phone" json:"phone"`
	DateOfBirth           *time.Time     `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender                string         `db:"gender" json:"gender,omitempty"`
	Address               string         `db:"address" json:"address,omitempty"`
	EmergencyContactName  string         `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string         `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	BloodType             string         `db:"blood_type" json:"blood_type,omitempty"`
	Allergies             pq.StringArray `db:"allergies" json:"allergies"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type UpsertPatientRequest struct {
	FirstName             string     `json:"first_name" binding:"required,max=100"`
	LastName              string     `json:"last_name" binding:"required,max=100"`
	Phone                 string     `json:"phone" binding:"omitempty,phphone"`
	DateOfBirth           *time.Time `json:"date_of_birth"`
	Gender                string     `json:"gender" binding:"omitempty,oneof=male female other"`
	Address               string     `json:"address" binding:"max=500"`
	EmergencyContactName  string     `json:"emergency_contact_name" binding:"max=200"`
	EmergencyContactPhone string     `json:"emergency_contact_phone" binding:"omitempty,phphone"`
	BloodType             string     `json:"blood_type" binding:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies             []string   `json:"allergies"`
}
