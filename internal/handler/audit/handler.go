package audit

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/httputil"
)

// exportLimit caps a single CSV export.
const exportLimit = 10000

type Handler struct {
	service *audit.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *audit.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	logs := r.Group("/admin/audit-logs", h.auth.Authenticate(), middleware.RequireRole(model.RoleAdmin))
	{
		logs.GET("", h.ListLogs)
		logs.GET("/export", h.ExportLogs)
	}
}

func filterFromQuery(c *gin.Context) (model.AuditFilter, bool) {
	filter := model.AuditFilter{
		EntityType: c.Query("entity_type"),
		Action:     c.Query("action"),
	}
	var ok bool
	if filter.UserID, ok = handler.QueryUUID(c, "user_id"); !ok {
		return filter, false
	}
	if filter.EntityID, ok = handler.QueryUUID(c, "entity_id"); !ok {
		return filter, false
	}
	if filter.From, ok = handler.QueryTime(c, "from"); !ok {
		return filter, false
	}
	if filter.To, ok = handler.QueryTime(c, "to"); !ok {
		return filter, false
	}
	return filter, true
}

func (h *Handler) ListLogs(c *gin.Context) {
	filter, ok := filterFromQuery(c)
	if !ok {
		return
	}

	page := handler.Page(c)
	logs, total, err := h.service.List(c.Request.Context(), filter, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, logs, page, total)
}

func (h *Handler) ExportLogs(c *gin.Context) {
	filter, ok := filterFromQuery(c)
	if !ok {
		return
	}

	logs, _, err := h.service.List(c.Request.Context(), filter, model.Page{Page: 1, PageSize: exportLimit})
	if err != nil {
		httputil.RespondWithError(c, errors.Internal(err))
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.csv", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"ID", "User ID", "Action", "Entity Type", "Entity ID", "IP Address", "Created At"})
	for _, log := range logs {
		userID := ""
		if log.UserID != nil {
			userID = log.UserID.String()
		}
		_ = writer.Write([]string{
			log.ID.String(),
			userID,
			log.Action,
			log.EntityType,
			log.EntityID.String(),
			log.IPAddress,
			log.CreatedAt.Format(time.RFC3339),
		})
	}
	writer.Flush()
}
