package prescription

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/prescription"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *prescription.Service
	auth    *middleware.AuthMiddleware
	auditor *audit.Service
}

// NewHandler takes the auditor that records reads of health information.
func NewHandler(service *prescription.Service, authMW *middleware.AuthMiddleware, auditor *audit.Service) *Handler {
	return &Handler{service: service, auth: authMW, auditor: auditor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	phi := middleware.PHIAccess(h.auditor, model.AuditEntityPrescription)
	prescriptions := r.Group("/prescriptions", h.auth.Authenticate())
	{
		prescriptions.POST("", middleware.RequireRole(model.RoleClinic), h.CreatePrescription)
		prescriptions.GET("/me", middleware.RequireRole(model.RolePatient), phi, h.ListMine)
		prescriptions.GET("/:id", phi, h.GetPrescription)
	}
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	var req model.CreatePrescriptionRequest
	if !handler.Bind(c, &req) {
		return
	}

	p, err := h.service.Create(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, p)
}

func (h *Handler) GetPrescription(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) ListMine(c *gin.Context) {
	page := handler.Page(c)
	items, total, err := h.service.ListMine(c.Request.Context(), middleware.Actor(c), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, items, page, total)
}
