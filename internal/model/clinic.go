package model

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ClinicStatus string

const (
	ClinicStatusPending   ClinicStatus = "pending"
	ClinicStatusApproved  ClinicStatus = "approved"
	ClinicStatusRejected  ClinicStatus = "rejected"
	ClinicStatusSuspended ClinicStatus = "suspended"
)

var clinicTransitions = map[ClinicStatus][]ClinicStatus{
	ClinicStatusPending:   {ClinicStatusApproved, ClinicStatusRejected},
	ClinicStatusApproved:  {ClinicStatusSuspended},
	ClinicStatusSuspended: {ClinicStatusApproved},
	ClinicStatusRejected:  {ClinicStatusPending},
}

func (s ClinicStatus) CanTransitionTo(next ClinicStatus) bool {
	for _, allowed := range clinicTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Clinic struct {
	Base
	UserID          uuid.UUID      `db:"user_id" json:"user_id"`
	Name            string         `db:"name" json:"name"`
	Email           string         `db:"email" json:"email"`
	Phone           string         `db:"phone" json:"phone"`
	Website         string         `db:"website" json:"website,omitempty"`
	Address         string         `db:"address" json:"address"`
	City            string         `db:"city" json:"city"`
	Province        string         `db:"province" json:"province"`
	ZipCode         string         `db:"zip_code" json:"zip_code"`
	LicenseNumber   string         `db:"license_number" json:"license_number,omitempty"`
	Accreditation   string         `db:"accreditation" json:"accreditation,omitempty"`
	TaxID           string         `db:"tax_id" json:"-"`
	YearEstablished int            `db:"year_established" json:"year_established,omitempty"`
	NumberOfDoctors int            `db:"number_of_doctors" json:"number_of_doctors"`
	NumberOfStaff   int            `db:"number_of_staff" json:"number_of_staff"`
	Specialties     pq.StringArray `db:"specialties" json:"specialties"`
	Services        pq.StringArray `db:"services" json:"services"`
	Description     string         `db:"description" json:"description,omitempty"`
	Status          ClinicStatus   `db:"status" json:"status"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RiskScore       float64        `db:"risk_score" json:"-"`
	RiskLevel       string         `db:"risk_level" json:"-"`
	RiskFlags       pq.StringArray `db:"risk_flags" json:"-"`
	AccountStatus   string         `db:"account_status" json:"-"`
	AverageRating   float64        `db:"average_rating" json:"average_rating"`
	ReviewCount     int            `db:"review_count" json:"review_count"`
}

// ClinicAdminView exposes the screening fields hidden from the public view.
type ClinicAdminView struct {
	*Clinic
	TaxID         string   `json:"tax_id,omitempty"`
	RiskScore     float64  `json:"risk_score"`
	RiskLevel     string   `json:"risk_level"`
	RiskFlags     []string `json:"risk_flags"`
	AccountStatus string   `json:"account_status"`
}

func (c *Clinic) AdminView() *ClinicAdminView {
	return &ClinicAdminView{
		Clinic:        c,
		TaxID:         c.TaxID,
		RiskScore:     c.RiskScore,
		RiskLevel:     c.RiskLevel,
		RiskFlags:     c.RiskFlags,
		AccountStatus: c.AccountStatus,
	}
}

type ClinicRequest struct {
	Name            string           `json:"name" binding:"required,max=200"`
	Email           string           `json:"email" binding:"required,email"`
	Phone           string           `json:"phone" binding:"required,phphone"`
	Website         string           `json:"website" binding:"omitempty,url"`
	Address         string           `json:"address" binding:"required,max=500"`
	City            string           `json:"city" binding:"required,max=100"`
	Province        string           `json:"province" binding:"required,max=100"`
	ZipCode         string           `json:"zip_code" binding:"omitempty,numeric,len=4"`
	LicenseNumber   string           `json:"license_number" binding:"max=40"`
	Accreditation   string           `json:"accreditation" binding:"max=200"`
	TaxID           string           `json:"tax_id" binding:"max=20"`
	YearEstablished int              `json:"year_established" binding:"omitempty,gte=1900"`
	NumberOfDoctors int              `json:"number_of_doctors" binding:"gte=0"`
	NumberOfStaff   int              `json:"number_of_staff" binding:"gte=0"`
	Specialties     []string         `json:"specialties"`
	Services        []string         `json:"services"`
	Description     string           `json:"description" binding:"max=5000"`
	Behavior        *BehaviorMetrics `json:"behavior,omitempty"`
}

type ClinicFilter struct {
	Query     string
	City      string
	Specialty string
	Status    ClinicStatus
}

// CacheKey identifies a public listing in the in-process cache.
func (f ClinicFilter) CacheKey(p Page) string {
	return string(f.Status) + "|" + f.Query + "|" + f.City + "|" + f.Specialty + "|" +
		strconv.Itoa(p.Page) + "|" + strconv.Itoa(p.PageSize)
}

type ClinicStatusRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}
