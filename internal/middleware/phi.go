package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
)

// PHIAccess writes a view entry to the audit trail after every successful
// read of patient health information. The record is taken from the :id
// route parameter; listings of the caller's own records use uuid.Nil.
func PHIAccess(auditor *audit.Service, entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if auditor == nil || c.Writer.Status() >= 300 {
			return
		}
		entityID, _ := uuid.Parse(c.Param("id"))
		// failures are logged by the auditor
		_ = auditor.Log(c.Request.Context(), Actor(c).UserID, model.AuditActionView, entityType, entityID, nil)
	}
}
