package model

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

const (
	AccountStatusRestricted           = "RESTRICTED"
	AccountStatusActiveLimited        = "ACTIVE_LIMITED"
	AccountStatusVerificationRequired = "VERIFICATION_REQUIRED"
)

// ClinicProfile is the input to clinic risk screening.
type ClinicProfile struct {
	ClinicName      string           `json:"clinic_name" binding:"required"`
	Email           string           `json:"email" binding:"required,email"`
	Phone           string           `json:"phone"`
	Website         string           `json:"website"`
	Address         string           `json:"address"`
	City            string           `json:"city"`
	State           string           `json:"state"`
	ZipCode         string           `json:"zip_code"`
	LicenseNumber   string           `json:"license_number"`
	Accreditation   string           `json:"accreditation"`
	TaxID           string           `json:"tax_id"`
	YearEstablished int              `json:"year_established"`
	Specialties     []string         `json:"specialties"`
	Services        []string         `json:"services"`
	NumberOfDoctors int              `json:"number_of_doctors"`
	NumberOfStaff   int              `json:"number_of_staff"`
	Description     string           `json:"description"`
	Behavior        *BehaviorMetrics `json:"behavior,omitempty"`
}

type RiskAssessment struct {
	RiskScore     float64                `json:"risk_score"`
	RiskLevel     RiskLevel              `json:"risk_level"`
	AccountStatus string                 `json:"account_status"`
	Flags         []string               `json:"flags"`
	Features      map[string]interface{} `json:"features"`
	Behavior      *BehaviorVerdict       `json:"behavior,omitempty"`
	ModelVersion  string                 `json:"model_version"`
}

type BatchAssessRequest struct {
	Clinics []ClinicProfile `json:"clinics" binding:"required,min=1"`
}

type BatchItemError struct {
	Index      int    `json:"index"`
	ClinicName string `json:"clinic_name"`
	Error      string `json:"error"`
}

type BatchAssessResult struct {
	Results []*RiskAssessment `json:"results"`
	Errors  []BatchItemError  `json:"errors"`
	Summary map[string]int    `json:"summary"`
}

// BehaviorMetrics is a client-side interaction snapshot.
type BehaviorMetrics struct {
	TimeOnPage       float64 `json:"time_on_page" binding:"gte=0"`
	MouseRate        float64 `json:"mouse_rate" binding:"gte=0"`
	KeyRate          float64 `json:"key_rate" binding:"gte=0"`
	IdleRatio        float64 `json:"idle_ratio" binding:"gte=0,lte=1"`
	InteractionScore float64 `json:"interaction_score" binding:"gte=0"`
}

type BehaviorVerdict struct {
	IsHuman       bool                  `json:"is_human"`
	Confidence    float64               `json:"confidence"`
	Reason        string                `json:"reason"`
	ModelVersion  string                `json:"model_version"`
	Probabilities BehaviorProbabilities `json:"probabilities"`
}

type BehaviorProbabilities struct {
	Human float64 `json:"human"`
	Bot   float64 `json:"bot"`
}
