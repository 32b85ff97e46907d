package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("s3cret", "igabaycare", time.Hour)
	userID := uuid.New()

	token, exp, err := svc.GenerateAccessToken(userID, "pat@example.com", "patient")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "patient", claims.Role)
	assert.Equal(t, "pat@example.com", claims.Email)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, _, err := NewJWTService("a", "igabaycare", time.Hour).GenerateAccessToken(uuid.New(), "x@y.z", "admin")
	require.NoError(t, err)

	_, err = NewJWTService("b", "igabaycare", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := NewJWTService("s3cret", "igabaycare", time.Minute).(*jwtService)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.GenerateAccessToken(uuid.New(), "x@y.z", "clinic")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
