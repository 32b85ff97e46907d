package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository/memory"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/pkg/auth"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/security"
)

func newService() (*Service, *memory.Store, auth.JWTService) {
	store := memory.NewStore()
	repos := memory.NewRepositories(store)
	jwtSvc := auth.NewJWTService("test-secret", "igabaycare", time.Hour)
	return NewService(repos.Users, jwtSvc, security.NewBcryptHasher(bcrypt.MinCost), audit.NewService(repos.Audit)), store, jwtSvc
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store, jwtSvc := newService()
	ctx := context.Background()

	user, err := svc.Register(ctx, &model.RegisterRequest{Email: " Maria@Example.com", Password: "s3cretpass", Role: model.RolePatient})
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", user.Email)
	assert.NotEqual(t, "s3cretpass", user.PasswordHash)

	resp, err := svc.Login(ctx, "maria@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotNil(t, resp.User.LastLoginAt)

	claims, err := jwtSvc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "patient", claims.Role)

	assert.Len(t, store.AuditLogs(), 2)
}

func TestRegisterRejects(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, &model.RegisterRequest{Email: "a@example.com", Password: "longenough", Role: model.RoleAdmin})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	_, err = svc.Register(ctx, &model.RegisterRequest{Email: "a@example.com", Password: "short", Role: model.RolePatient})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	_, err = svc.Register(ctx, &model.RegisterRequest{Email: "a@example.com", Password: "longenough", Role: model.RoleClinic})
	require.NoError(t, err)
	_, err = svc.Register(ctx, &model.RegisterRequest{Email: "A@example.com", Password: "longenough", Role: model.RolePatient})
	assert.True(t, errors.HasCode(err, errors.ErrConflict))
}

func TestLoginFailuresAreGeneric(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	_, err := svc.Register(ctx, &model.RegisterRequest{Email: "a@example.com", Password: "longenough", Role: model.RolePatient})
	require.NoError(t, err)

	_, wrongPass := svc.Login(ctx, "a@example.com", "nope-nope")
	_, unknown := svc.Login(ctx, "b@example.com", "longenough")

	require.Error(t, wrongPass)
	require.Error(t, unknown)
	assert.True(t, errors.HasCode(wrongPass, errors.ErrUnauthorized))
	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestDisabledUserCannotLogin(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	hash, err := security.NewBcryptHasher(bcrypt.MinCost).Hash("longenough")
	require.NoError(t, err)
	require.NoError(t, svc.userRepo.Create(ctx, &model.User{
		Email: "off@example.com", PasswordHash: hash, Role: model.RolePatient, Status: model.UserStatusDisabled,
	}))

	_, err = svc.Login(ctx, "off@example.com", "longenough")
	assert.True(t, errors.HasCode(err, errors.ErrUnauthorized))
}

func TestMe(t *testing.T) {
	svc, _, _ := newService()
	user, err := svc.Register(context.Background(), &model.RegisterRequest{Email: "a@example.com", Password: "longenough", Role: model.RoleDoctor})
	require.NoError(t, err)

	got, err := svc.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDoctor, got.Role)
}
