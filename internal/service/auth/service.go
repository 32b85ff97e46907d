package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/pkg/auth"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/security"
)

// errInvalidCredentials is deliberately the same for unknown emails, wrong
// passwords and disabled accounts.
const errInvalidCredentials = "invalid email or password"

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	auditor  *audit.Service
	now      func() time.Time
}

func NewService(userRepo repository.UserRepository, jwtSvc auth.JWTService,
	hasher security.PasswordHasher, auditor *audit.Service) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		auditor:  auditor,
		now:      time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	switch req.Role {
	case model.RolePatient, model.RoleClinic, model.RoleDoctor:
	default:
		return nil, errors.BadRequest("role must be patient, clinic or doctor", nil)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooShort) {
			return nil, errors.BadRequest(err.Error(), err)
		}
		return nil, errors.Internal(err)
	}

	user := &model.User{
		Base:         model.Base{ID: uuid.New()},
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
		Status:       model.UserStatusActive,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("email is already registered", err)
		}
		return nil, errors.Internal(err)
	}

	_ = s.auditor.Log(ctx, user.ID, model.AuditActionCreate, model.AuditEntityUser, user.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"role": user.Role},
	})
	log.Info().Str("user_id", user.ID.String()).Str("role", string(user.Role)).Msg("user registered")
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.Unauthorized(errInvalidCredentials, nil)
		}
		return nil, errors.Internal(err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, errors.Unauthorized(errInvalidCredentials, nil)
	}
	if user.Status != model.UserStatusActive {
		return nil, errors.Unauthorized(errInvalidCredentials, nil)
	}

	token, expiresAt, err := s.jwtSvc.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, errors.Internal(err)
	}

	now := s.now().UTC()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record last login")
	}
	user.LastLoginAt = &now

	_ = s.auditor.Log(ctx, user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID, nil)

	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("user", err)
		}
		return nil, errors.Internal(err)
	}
	return user, nil
}
