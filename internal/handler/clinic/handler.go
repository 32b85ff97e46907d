package clinic

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	clinicService "github.com/igabaycare/care-api/internal/service/clinic"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *clinicService.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *clinicService.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	clinics := r.Group("/clinics")
	{
		clinics.GET("", h.ListClinics)
		clinics.GET("/search", h.SearchClinics)
		clinics.GET("/me", h.auth.Authenticate(), middleware.RequireRole(model.RoleClinic), h.GetOwnClinic)
		clinics.GET("/:id", h.auth.OptionalAuthenticate(), h.GetClinic)

		owner := clinics.Group("", h.auth.Authenticate(), middleware.RequireRole(model.RoleClinic))
		owner.POST("", h.RegisterClinic)
		owner.PUT("/:id", h.UpdateClinic)
		owner.POST("/:id/resubmit", h.ResubmitClinic)
	}

	admin := r.Group("/admin/clinics", h.auth.Authenticate(), middleware.RequireRole(model.RoleAdmin))
	{
		admin.GET("", h.ListForReview)
		admin.POST("/:id/approve", h.ApproveClinic)
		admin.POST("/:id/reject", h.RejectClinic)
		admin.POST("/:id/suspend", h.SuspendClinic)
	}
}

func filterFromQuery(c *gin.Context) model.ClinicFilter {
	return model.ClinicFilter{
		Query:     c.Query("q"),
		City:      c.Query("city"),
		Specialty: c.Query("specialty"),
	}
}

func (h *Handler) ListClinics(c *gin.Context) {
	page := handler.Page(c)
	clinics, total, err := h.service.ListPublic(c.Request.Context(), filterFromQuery(c), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, clinics, page, total)
}

func (h *Handler) SearchClinics(c *gin.Context) {
	filter := filterFromQuery(c)
	if filter.Query == "" {
		httputil.RespondWithError(c, errors.BadRequest("q is required", nil))
		return
	}

	page := handler.Page(c)
	clinics, total, err := h.service.Search(c.Request.Context(), filter, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, clinics, page, total)
}

func (h *Handler) GetClinic(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	clinic, err := h.service.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinic)
}

func (h *Handler) GetOwnClinic(c *gin.Context) {
	clinic, err := h.service.Mine(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinic)
}

func (h *Handler) RegisterClinic(c *gin.Context) {
	var req model.ClinicRequest
	if !handler.Bind(c, &req) {
		return
	}

	clinic, err := h.service.Register(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, clinic)
}

func (h *Handler) UpdateClinic(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.ClinicRequest
	if !handler.Bind(c, &req) {
		return
	}

	clinic, err := h.service.Update(c.Request.Context(), middleware.Actor(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinic)
}

func (h *Handler) ResubmitClinic(c *gin.Context) {
	h.transition(c, func(actor model.Actor, id uuid.UUID, _ string) (*model.Clinic, error) {
		return h.service.Resubmit(c.Request.Context(), actor, id)
	})
}

func (h *Handler) ListForReview(c *gin.Context) {
	filter := filterFromQuery(c)
	filter.Status = model.ClinicStatus(c.Query("status"))

	page := handler.Page(c)
	clinics, total, err := h.service.ListAdmin(c.Request.Context(), filter, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, clinics, page, total)
}

func (h *Handler) ApproveClinic(c *gin.Context) {
	h.transition(c, func(actor model.Actor, id uuid.UUID, _ string) (*model.Clinic, error) {
		return h.service.Approve(c.Request.Context(), actor, id)
	})
}

func (h *Handler) RejectClinic(c *gin.Context) {
	h.transition(c, func(actor model.Actor, id uuid.UUID, reason string) (*model.Clinic, error) {
		return h.service.Reject(c.Request.Context(), actor, id, reason)
	})
}

func (h *Handler) SuspendClinic(c *gin.Context) {
	h.transition(c, func(actor model.Actor, id uuid.UUID, reason string) (*model.Clinic, error) {
		return h.service.Suspend(c.Request.Context(), actor, id, reason)
	})
}

// transition handles the status endpoints, which share an optional
// {"reason": "..."} body.
func (h *Handler) transition(c *gin.Context, fn func(model.Actor, uuid.UUID, string) (*model.Clinic, error)) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.ClinicStatusRequest
	if c.Request.ContentLength > 0 && !handler.Bind(c, &req) {
		return
	}

	clinic, err := fn(middleware.Actor(c), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, clinic)
}
