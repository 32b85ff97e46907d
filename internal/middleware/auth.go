package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/pkg/auth"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/httputil"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "user_email"
	ContextRole   = "user_role"
)

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwtSvc auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwtSvc}
}

// Authenticate verifies the bearer token and stores the caller in context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, errors.Unauthorized("missing authorization header", nil))
			return
		}
		if !m.identify(c, header) {
			return
		}
		c.Next()
	}
}

// OptionalAuthenticate identifies the caller when a token is sent and lets
// anonymous requests through.
func (m *AuthMiddleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" && !m.identify(c, header) {
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) identify(c *gin.Context, header string) bool {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		httputil.RespondWithError(c, errors.Unauthorized("invalid authorization format", nil))
		return false
	}
	claims, err := m.jwt.ValidateToken(parts[1])
	if err != nil {
		httputil.RespondWithError(c, errors.Unauthorized("invalid or expired token", err))
		return false
	}

	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextEmail, claims.Email)
	c.Set(ContextRole, model.Role(claims.Role))
	return true
}

// RequireRole lets the request through only for the given roles. It must run
// after Authenticate.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor(c)
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.Forbidden("insufficient role"))
	}
}

// Actor returns the authenticated caller, or the zero Actor.
func Actor(c *gin.Context) model.Actor {
	var actor model.Actor
	if id, ok := c.Get(ContextUserID); ok {
		actor.UserID, _ = id.(uuid.UUID)
	}
	if role, ok := c.Get(ContextRole); ok {
		actor.Role, _ = role.(model.Role)
	}
	actor.Email = c.GetString(ContextEmail)
	return actor
}
