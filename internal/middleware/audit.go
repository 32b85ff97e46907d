package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/service/audit"
)

// AuditContext makes the client address and user agent available to audit
// entries written while serving the request.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
