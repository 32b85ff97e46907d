package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/service/notification"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *notification.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *notification.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications", h.auth.Authenticate())
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.POST("/:id/read", h.MarkRead)
		notifications.POST("/read-all", h.MarkAllRead)
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	page := handler.Page(c)
	items, total, err := h.service.Inbox(c.Request.Context(), middleware.Actor(c).UserID, c.Query("unread") == "true", page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, items, page, total)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"count": count})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), middleware.Actor(c).UserID, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "read": true})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.service.MarkAllRead(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"updated": n})
}
