package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

type LogOptions struct {
	Changes   interface{}
	IPAddress string
	UserAgent string
}

// Log creates an audit log entry. actorID uuid.Nil records a system action.
// Failures are logged and returned; callers normally carry on.
func (s *Service) Log(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}

	var changes json.RawMessage
	if opts.Changes != nil {
		b, err := json.Marshal(opts.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		changes = b
	}

	// Take IP and user agent from the request when not given
	ip, ua := opts.IPAddress, opts.UserAgent
	if c, ok := clientFrom(ctx); ok && ip == "" {
		ip, ua = c.IP, c.UserAgent
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  ip,
		UserAgent:  ua,
		CreatedAt:  time.Now().UTC(),
	}
	if actorID != uuid.Nil {
		entry.UserID = &actorID
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID.String()).
			Msg("failed to write audit log")
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, filter model.AuditFilter, page model.Page) ([]*model.AuditLog, int64, error) {
	return s.repo.List(ctx, filter, page)
}

func (s *Service) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteBefore(ctx, before)
}
