package clinic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/search"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/event"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/internal/service/risk"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/metrics"
)

const defaultListTTL = time.Minute

type Service struct {
	repo     repository.ClinicRepository
	risk     *risk.Service
	index    search.ClinicIndex
	cache    *gocache.Cache
	notifier notification.Notifier
	auditor  *audit.Service
	metrics  *metrics.Metrics
}

// NewService wires the clinic service. index may be nil, in which case
// Search falls back to database listing.
func NewService(
	repo repository.ClinicRepository,
	riskSvc *risk.Service,
	index search.ClinicIndex,
	notifier notification.Notifier,
	auditor *audit.Service,
	m *metrics.Metrics,
	listTTL time.Duration,
) *Service {
	if listTTL <= 0 {
		listTTL = defaultListTTL
	}
	return &Service{
		repo:     repo,
		risk:     riskSvc,
		index:    index,
		cache:    gocache.New(listTTL, 2*listTTL),
		notifier: notifier,
		auditor:  auditor,
		metrics:  m,
	}
}

type listing struct {
	clinics []*model.Clinic
	total   int64
}

func profileOf(req *model.ClinicRequest) *model.ClinicProfile {
	return &model.ClinicProfile{
		ClinicName:      req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Website:         req.Website,
		Address:         req.Address,
		City:            req.City,
		State:           req.Province,
		ZipCode:         req.ZipCode,
		LicenseNumber:   req.LicenseNumber,
		Accreditation:   req.Accreditation,
		TaxID:           req.TaxID,
		YearEstablished: req.YearEstablished,
		Specialties:     req.Specialties,
		Services:        req.Services,
		NumberOfDoctors: req.NumberOfDoctors,
		NumberOfStaff:   req.NumberOfStaff,
		Description:     req.Description,
		Behavior:        req.Behavior,
	}
}

func apply(c *model.Clinic, req *model.ClinicRequest) {
	c.Name = strings.TrimSpace(req.Name)
	c.Email = strings.ToLower(req.Email)
	c.Phone = req.Phone
	c.Website = req.Website
	c.Address = req.Address
	c.City = req.City
	c.Province = req.Province
	c.ZipCode = req.ZipCode
	c.LicenseNumber = req.LicenseNumber
	c.Accreditation = req.Accreditation
	c.TaxID = req.TaxID
	c.YearEstablished = req.YearEstablished
	c.NumberOfDoctors = req.NumberOfDoctors
	c.NumberOfStaff = req.NumberOfStaff
	c.Specialties = nonNil(req.Specialties)
	c.Services = nonNil(req.Services)
	c.Description = req.Description
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Register creates the caller's clinic in pending state, screened by the
// risk model.
func (s *Service) Register(ctx context.Context, actor model.Actor, req *model.ClinicRequest) (*model.Clinic, error) {
	if !actor.Is(model.RoleClinic) {
		return nil, errors.Forbidden("only clinic accounts can register a clinic")
	}
	if _, err := s.repo.GetByUserID(ctx, actor.UserID); err == nil {
		return nil, errors.Conflict("clinic already registered for this account", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Internal(err)
	}

	assessment, err := s.risk.Assess(profileOf(req))
	if err != nil {
		return nil, err
	}

	c := &model.Clinic{
		Base:          model.Base{ID: uuid.New()},
		UserID:        actor.UserID,
		Status:        model.ClinicStatusPending,
		RiskScore:     assessment.RiskScore,
		RiskLevel:     string(assessment.RiskLevel),
		RiskFlags:     nonNil(assessment.Flags),
		AccountStatus: assessment.AccountStatus,
	}
	apply(c, req)

	evt, err := event.Clinic(model.EventClinicRegistered, c, "")
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.repo.Create(ctx, c, evt); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("clinic already registered", err)
		}
		return nil, errors.Internal(err)
	}

	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionCreate, model.AuditEntityClinic, c.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"risk_level": c.RiskLevel, "risk_score": c.RiskScore},
	})
	log.Info().
		Str("clinic_id", c.ID.String()).
		Str("risk_level", c.RiskLevel).
		Msg("clinic registered")
	return c, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("clinic", err)
		}
		return nil, errors.Internal(err)
	}
	return c, nil
}

// CanManage reports whether actor owns the clinic or is an admin.
func CanManage(actor model.Actor, c *model.Clinic) bool {
	return actor.Is(model.RoleAdmin) || (actor.Is(model.RoleClinic) && c.UserID == actor.UserID)
}

// Get hides clinics that are not approved from everyone but their owner
// and admins. actor may be the zero value for anonymous callers.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Clinic, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.ClinicStatusApproved && !CanManage(actor, c) {
		return nil, errors.NotFound("clinic", nil)
	}
	return c, nil
}

func (s *Service) Mine(ctx context.Context, actor model.Actor) (*model.Clinic, error) {
	c, err := s.repo.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("clinic", err)
		}
		return nil, errors.Internal(err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.ClinicRequest) (*model.Clinic, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanManage(actor, c) {
		return nil, errors.Forbidden("not allowed to update this clinic")
	}

	apply(c, req)
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Internal(err)
	}

	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionUpdate, model.AuditEntityClinic, c.ID, nil)
	if c.Status == model.ClinicStatusApproved {
		s.cache.Flush()
		s.syncIndex(ctx, c)
	}
	return c, nil
}

// ListPublic lists approved clinics only, whatever status the filter asks
// for.
func (s *Service) ListPublic(ctx context.Context, filter model.ClinicFilter, page model.Page) ([]*model.Clinic, int64, error) {
	filter.Status = model.ClinicStatusApproved
	key := filter.CacheKey(page)
	if v, ok := s.cache.Get(key); ok {
		s.observeCache("hit")
		l := v.(listing)
		return l.clinics, l.total, nil
	}
	s.observeCache("miss")

	clinics, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, 0, errors.Internal(err)
	}
	s.cache.SetDefault(key, listing{clinics: clinics, total: total})
	return clinics, total, nil
}

func (s *Service) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues("clinic_list", result).Inc()
	}
}

// Search queries the directory index and falls back to ListPublic when no
// index is configured or it is unreachable.
func (s *Service) Search(ctx context.Context, filter model.ClinicFilter, page model.Page) ([]*model.Clinic, int64, error) {
	if s.index != nil {
		clinics, total, err := s.index.Search(ctx, filter, page)
		if err == nil {
			return clinics, total, nil
		}
		log.Warn().Err(err).Msg("clinic search index unavailable, falling back to database")
	}
	return s.ListPublic(ctx, filter, page)
}

// ListAdmin lists clinics in any status.
func (s *Service) ListAdmin(ctx context.Context, filter model.ClinicFilter, page model.Page) ([]*model.Clinic, int64, error) {
	clinics, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, 0, errors.Internal(err)
	}
	return clinics, total, nil
}

func (s *Service) Approve(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Clinic, error) {
	return s.adminTransition(ctx, actor, id, model.ClinicStatusApproved, "")
}

func (s *Service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Clinic, error) {
	return s.adminTransition(ctx, actor, id, model.ClinicStatusRejected, reason)
}

func (s *Service) Suspend(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Clinic, error) {
	return s.adminTransition(ctx, actor, id, model.ClinicStatusSuspended, reason)
}

func (s *Service) adminTransition(ctx context.Context, actor model.Actor, id uuid.UUID, next model.ClinicStatus, reason string) (*model.Clinic, error) {
	if !actor.Is(model.RoleAdmin) {
		return nil, errors.Forbidden("admin role required")
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, c, next, reason)
}

// Resubmit puts a rejected clinic back in the review queue.
func (s *Service) Resubmit(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Clinic, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Is(model.RoleClinic) || c.UserID != actor.UserID {
		return nil, errors.Forbidden("only the clinic owner can resubmit")
	}
	return s.transition(ctx, actor, c, model.ClinicStatusPending, "")
}

func (s *Service) transition(ctx context.Context, actor model.Actor, c *model.Clinic, next model.ClinicStatus, reason string) (*model.Clinic, error) {
	prev := c.Status
	if !prev.CanTransitionTo(next) {
		return nil, errors.Unprocessable(fmt.Sprintf("invalid clinic status transition from %s to %s", prev, next), nil)
	}

	c.Status = next
	c.RejectionReason = nil
	if reason != "" && (next == model.ClinicStatusRejected || next == model.ClinicStatusSuspended) {
		c.RejectionReason = &reason
	}

	evt, err := event.Clinic(model.EventClinicStatusChanged, c, prev)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if err := s.repo.UpdateStatus(ctx, c, prev, evt); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("clinic status changed concurrently", err)
		}
		return nil, errors.Internal(err)
	}

	_ = s.auditor.Log(ctx, actor.UserID, model.AuditActionStatusChange, model.AuditEntityClinic, c.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"from": prev, "to": next, "reason": reason},
	})
	s.cache.Flush()
	s.syncIndex(ctx, c)
	notification.Send(ctx, s.notifier, statusMessage(c))

	log.Info().
		Str("clinic_id", c.ID.String()).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("clinic status changed")
	return c, nil
}

// syncIndex keeps the directory in step with the clinic's status. Index
// failures are logged; the database stays the source of truth.
func (s *Service) syncIndex(ctx context.Context, c *model.Clinic) {
	if s.index == nil {
		return
	}
	var err error
	if c.Status == model.ClinicStatusApproved {
		err = s.index.Index(ctx, c)
	} else {
		err = s.index.Remove(ctx, c.ID)
	}
	if err != nil {
		log.Error().Err(err).Str("clinic_id", c.ID.String()).Msg("failed to sync clinic search index")
	}
}

func statusMessage(c *model.Clinic) model.Message {
	content := fmt.Sprintf("Your clinic %s is now %s.", c.Name, c.Status)
	if c.RejectionReason != nil {
		content += " Reason: " + *c.RejectionReason
	}
	return model.Message{
		UserID:   c.UserID,
		Email:    c.Email,
		Type:     model.NotificationClinicStatus,
		Subject:  "Clinic status update",
		Content:  content,
		Channels: []model.Channel{model.ChannelInApp, model.ChannelEmail},
		Metadata: model.JSONMap{"clinic_id": c.ID.String(), "status": string(c.Status)},
	}
}

