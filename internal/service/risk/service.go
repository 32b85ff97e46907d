// Package risk screens clinic registrations with a rule-based model and
// classifies interaction snapshots as human or automated.
package risk

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/pkg/errors"
)

const (
	ModelVersion         = "rules-1.0.0"
	BehaviorModelVersion = "mock-1.0.0"
	MaxBatchSize         = 100

	lowRiskMax    = 0.3
	mediumRiskMax = 0.7
)

const (
	FlagNoWebsite            = "NO_WEBSITE"
	FlagNoLicense            = "NO_LICENSE"
	FlagInvalidLicenseFormat = "INVALID_LICENSE_FORMAT"
	FlagNoAccreditation      = "NO_ACCREDITATION"
	FlagNewBusiness          = "NEW_BUSINESS"
	FlagSoloPractice         = "SOLO_PRACTICE"
	FlagSuspectedBot         = "SUSPECTED_BOT"
)

var (
	licensePattern = regexp.MustCompile(`^[A-Z0-9]{6,20}$`)
	taxIDPattern   = regexp.MustCompile(`^\d{9,12}$`)

	personalDomains     = []string{"gmail", "yahoo", "hotmail", "outlook"}
	professionalDomains = []string{"clinic", "medical", "health"}
	medicalTerms        = []string{"medical", "healthcare", "patients", "treatment", "care", "professional"}
)

type Service struct {
	now func() time.Time
}

func NewService() *Service {
	return &Service{now: time.Now}
}

// Features is the engineered view of a clinic profile.
type Features struct {
	HasWebsite          bool
	HasPhone            bool
	HasLicense          bool
	LicenseFormatValid  bool
	HasAccreditation    bool
	HasTaxID            bool
	TaxIDFormatValid    bool
	YearsInBusiness     int
	IsNewBusiness       bool
	IsEstablished       bool
	IsSoloPractice      bool
	AddressCompleteness float64
	DescriptionQuality  float64
	EmailDomainType     string
}

func (s *Service) Features(p *model.ClinicProfile) Features {
	license := strings.ReplaceAll(strings.TrimSpace(p.LicenseNumber), "-", "")
	taxID := strings.ReplaceAll(strings.TrimSpace(p.TaxID), "-", "")

	years := 0
	if p.YearEstablished > 0 {
		years = s.now().Year() - p.YearEstablished
	}

	present := 0
	for _, v := range []string{p.Address, p.City, p.State, p.ZipCode} {
		if strings.TrimSpace(v) != "" {
			present++
		}
	}

	doctors := p.NumberOfDoctors
	if doctors == 0 {
		doctors = 1
	}

	return Features{
		HasWebsite:          strings.TrimSpace(p.Website) != "",
		HasPhone:            strings.TrimSpace(p.Phone) != "",
		HasLicense:          license != "",
		LicenseFormatValid:  licensePattern.MatchString(license),
		HasAccreditation:    strings.TrimSpace(p.Accreditation) != "",
		HasTaxID:            taxID != "",
		TaxIDFormatValid:    taxIDPattern.MatchString(taxID),
		YearsInBusiness:     years,
		IsNewBusiness:       years < 1,
		IsEstablished:       years >= 5,
		IsSoloPractice:      doctors == 1,
		AddressCompleteness: float64(present) / 4,
		DescriptionQuality:  textQuality(p.Description),
		EmailDomainType:     emailDomainType(p.Email),
	}
}

// Score applies the weighted rules and clamps to [0, 1]. The result is
// rounded so that threshold comparisons are exact.
func Score(f Features) float64 {
	score := 0.5
	if !f.HasLicense {
		score += 0.2
	}
	if !f.HasWebsite {
		score += 0.1
	}
	if f.IsNewBusiness {
		score += 0.15
	}
	if f.IsSoloPractice {
		score += 0.1
	}
	if !f.HasAccreditation {
		score += 0.1
	}

	if f.YearsInBusiness > 5 {
		score -= 0.1
	}
	if f.HasAccreditation {
		score -= 0.1
	}
	if f.LicenseFormatValid {
		score -= 0.15
	}
	return round(clamp(score))
}

func Level(score float64) model.RiskLevel {
	switch {
	case score <= lowRiskMax:
		return model.RiskLevelLow
	case score <= mediumRiskMax:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelHigh
	}
}

func AccountStatus(level model.RiskLevel, hasLicense bool) string {
	switch {
	case level == model.RiskLevelHigh:
		return model.AccountStatusRestricted
	case level == model.RiskLevelLow && hasLicense:
		return model.AccountStatusActiveLimited
	default:
		return model.AccountStatusVerificationRequired
	}
}

func Flags(f Features) []string {
	flags := []string{}
	if !f.HasWebsite {
		flags = append(flags, FlagNoWebsite)
	}
	if !f.HasLicense {
		flags = append(flags, FlagNoLicense)
	}
	// a missing license also fails the format check
	if !f.LicenseFormatValid {
		flags = append(flags, FlagInvalidLicenseFormat)
	}
	if !f.HasAccreditation {
		flags = append(flags, FlagNoAccreditation)
	}
	if f.IsNewBusiness {
		flags = append(flags, FlagNewBusiness)
	}
	if f.IsSoloPractice {
		flags = append(flags, FlagSoloPractice)
	}
	return flags
}

// Assess scores one clinic profile. A behaviour snapshot judged automated
// forces the HIGH level.
func (s *Service) Assess(p *model.ClinicProfile) (*model.RiskAssessment, error) {
	if err := validateProfile(p); err != nil {
		return nil, errors.BadRequest(err.Error(), err)
	}

	f := s.Features(p)
	score := Score(f)
	level := Level(score)
	flags := Flags(f)

	var verdict *model.BehaviorVerdict
	if p.Behavior != nil {
		verdict = ClassifyBehavior(p.Behavior)
		if !verdict.IsHuman {
			flags = append(flags, FlagSuspectedBot)
			level = model.RiskLevelHigh
		}
	}

	return &model.RiskAssessment{
		RiskScore:     score,
		RiskLevel:     level,
		AccountStatus: AccountStatus(level, f.HasLicense),
		Flags:         flags,
		Features:      f.asMap(),
		Behavior:      verdict,
		ModelVersion:  ModelVersion,
	}, nil
}

// AssessBatch scores up to MaxBatchSize profiles. Per-item failures are
// collected rather than aborting the batch.
func (s *Service) AssessBatch(req *model.BatchAssessRequest) (*model.BatchAssessResult, error) {
	if len(req.Clinics) == 0 {
		return nil, errors.BadRequest("clinics array is required", nil)
	}
	if len(req.Clinics) > MaxBatchSize {
		return nil, errors.BadRequest(fmt.Sprintf("maximum %d clinics per batch", MaxBatchSize), nil)
	}

	result := &model.BatchAssessResult{
		Results: make([]*model.RiskAssessment, 0, len(req.Clinics)),
		Errors:  []model.BatchItemError{},
	}
	for i := range req.Clinics {
		p := &req.Clinics[i]
		a, err := s.Assess(p)
		if err != nil {
			result.Errors = append(result.Errors, model.BatchItemError{Index: i, ClinicName: p.ClinicName, Error: err.Error()})
			continue
		}
		result.Results = append(result.Results, a)
	}
	result.Summary = map[string]int{
		"total_processed": len(req.Clinics),
		"successful":      len(result.Results),
		"failed":          len(result.Errors),
	}
	return result, nil
}

func (s *Service) ModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model_version":          ModelVersion,
		"behavior_model_version": BehaviorModelVersion,
		"model_type":             "rule_based",
		"risk_thresholds": map[string]float64{
			"low_risk_max":    lowRiskMax,
			"medium_risk_max": mediumRiskMax,
			"high_risk_min":   mediumRiskMax,
		},
		"account_statuses": []string{
			model.AccountStatusActiveLimited,
			model.AccountStatusVerificationRequired,
			model.AccountStatusRestricted,
		},
		"flags": []string{
			FlagNoWebsite, FlagNoLicense, FlagInvalidLicenseFormat, FlagNoAccreditation,
			FlagNewBusiness, FlagSoloPractice, FlagSuspectedBot,
		},
		"max_batch_size": MaxBatchSize,
	}
}

// ClassifyBehavior applies the interaction heuristics. The running value
// starts at 0.5; bot signals raise it and human signals lower it.
func ClassifyBehavior(m *model.BehaviorMetrics) *model.BehaviorVerdict {
	c := 0.5
	var bot, human []string

	if m.TimeOnPage < 5 {
		bot = append(bot, "very short time on page")
		c += 0.3
	}
	if m.MouseRate < 0.1 && m.KeyRate < 0.1 {
		bot = append(bot, "minimal interaction")
		c += 0.2
	}
	if m.IdleRatio > 0.7 {
		bot = append(bot, "high idle ratio")
		c += 0.2
	}
	if m.InteractionScore < 0.1 {
		bot = append(bot, "low interaction score")
		c += 0.1
	}

	if m.TimeOnPage > 30 && m.TimeOnPage < 300 {
		human = append(human, "reasonable time on page")
		c -= 0.2
	}
	if m.MouseRate > 0.5 && m.KeyRate > 0.1 {
		human = append(human, "active interaction")
		c -= 0.2
	}
	if m.IdleRatio < 0.5 {
		human = append(human, "low idle ratio")
		c -= 0.1
	}

	v := &model.BehaviorVerdict{
		IsHuman:      c < 0.6,
		Confidence:   round(clamp(math.Abs(c-0.5) * 2)),
		ModelVersion: BehaviorModelVersion,
	}
	// the losing class is pinned at 0.1
	if v.IsHuman {
		v.Reason = "human indicators: " + joinOr(human, "normal behavior patterns")
		v.Probabilities = model.BehaviorProbabilities{Human: round(1 - v.Confidence), Bot: 0.1}
	} else {
		v.Reason = "bot indicators: " + joinOr(bot, "suspicious behavior patterns")
		v.Probabilities = model.BehaviorProbabilities{Human: 0.1, Bot: v.Confidence}
	}
	return v
}

func validateProfile(p *model.ClinicProfile) error {
	if strings.TrimSpace(p.ClinicName) == "" {
		return fmt.Errorf("clinic_name is required")
	}
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func emailDomainType(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "unknown"
	}
	domain = strings.ToLower(domain)
	for _, d := range personalDomains {
		if strings.Contains(domain, d) {
			return "personal"
		}
	}
	for _, d := range professionalDomains {
		if strings.Contains(domain, d) {
			return "professional"
		}
	}
	return "business"
}

func textQuality(text string) float64 {
	if text == "" {
		return 0
	}
	score := 0.0
	if len(text) > 50 {
		score += 0.3
	}
	if len(text) > 150 {
		score += 0.2
	}
	if len(text) > 300 {
		score += 0.2
	}

	lower := strings.ToLower(text)
	found := 0
	for _, term := range medicalTerms {
		if strings.Contains(lower, term) {
			found++
		}
	}
	score += math.Min(0.3, float64(found)*0.1)
	return round(math.Min(1, score))
}

func (f Features) asMap() map[string]interface{} {
	return map[string]interface{}{
		"has_website":          f.HasWebsite,
		"has_phone":            f.HasPhone,
		"has_license":          f.HasLicense,
		"license_format_valid": f.LicenseFormatValid,
		"has_accreditation":    f.HasAccreditation,
		"has_tax_id":           f.HasTaxID,
		"tax_id_format_valid":  f.TaxIDFormatValid,
		"years_in_business":    f.YearsInBusiness,
		"is_new_business":      f.IsNewBusiness,
		"is_established":       f.IsEstablished,
		"is_solo_practice":     f.IsSoloPractice,
		"address_completeness": f.AddressCompleteness,
		"description_quality":  f.DescriptionQuality,
		"email_domain_type":    f.EmailDomainType,
	}
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round keeps float noise out of API responses and comparisons.
func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
