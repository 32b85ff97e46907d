package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	DoctorStatusActive   = "active"
	DoctorStatusInactive = "inactive"
)

type Doctor struct {
	Base
	ClinicID            uuid.UUID     `db:"clinic_id" json:"clinic_id"`
	UserID              *uuid.UUID    `db:"user_id" json:"user_id,omitempty"`
	FullName            string        `db:"full_name" json:"full_name"`
	Specialization      string        `db:"specialization" json:"specialization"`
	LicenseNumber       string        `db:"license_number" json:"license_number"`
	Email               string        `db:"email" json:"email,omitempty"`
	Phone               string        `db:"phone" json:"phone,omitempty"`
	ConsultationFee     int64         `db:"consultation_fee" json:"consultation_fee"`
	Currency            string        `db:"currency" json:"currency"`
	SlotDurationMinutes int           `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	WorkStart           string        `db:"work_start" json:"work_start"`
	WorkEnd             string        `db:"work_end" json:"work_end"`
	WorkDays            pq.Int64Array `db:"work_days" json:"work_days"`
	Status              string        `db:"status" json:"status"`
}

func (d *Doctor) IsActive() bool { return d.Status == DoctorStatusActive }

func (d *Doctor) SlotDuration() time.Duration {
	if d.SlotDurationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(d.SlotDurationMinutes) * time.Minute
}

func (d *Doctor) WorksOn(day time.Weekday) bool {
	for _, wd := range d.WorkDays {
		if time.Weekday(wd) == day {
			return true
		}
	}
	return false
}

// WorkingHours returns the shift bounds on the given date in loc.
func (d *Doctor) WorkingHours(date time.Time, loc *time.Location) (time.Time, time.Time, error) {
	start, err := clockOn(date, d.WorkStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid work_start: %w", err)
	}
	end, err := clockOn(date, d.WorkEnd, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid work_end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("work_end must be after work_start")
	}
	return start, end, nil
}

func clockOn(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, m, dd := date.In(loc).Date()
	return time.Date(y, m, dd, t.Hour(), t.Minute(), 0, 0, loc), nil
}

type DoctorRequest struct {
	FullName            string  `json:"full_name" binding:"required,max=200"`
	Specialization      string  `json:"specialization" binding:"required,max=100"`
	LicenseNumber       string  `json:"license_number" binding:"required,max=40"`
	Email               string  `json:"email" binding:"omitempty,email"`
	Phone               string  `json:"phone" binding:"omitempty,phphone"`
	ConsultationFee     int64   `json:"consultation_fee" binding:"gte=0"`
	SlotDurationMinutes int     `json:"slot_duration_minutes" binding:"omitempty,gte=15,lte=240"`
	WorkStart           string  `json:"work_start" binding:"required,hhmm"`
	WorkEnd             string  `json:"work_end" binding:"required,hhmm"`
	WorkDays            []int64 `json:"work_days" binding:"required,min=1,dive,gte=0,lte=6"`
	Status              string  `json:"status" binding:"omitempty,oneof=active inactive"`
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
