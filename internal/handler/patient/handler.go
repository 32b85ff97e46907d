package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/audit"
	"github.com/igabaycare/care-api/internal/service/patient"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *patient.Service
	auth    *middleware.AuthMiddleware
	auditor *audit.Service
}

// NewHandler takes the auditor that records reads of health information.
func NewHandler(service *patient.Service, authMW *middleware.AuthMiddleware, auditor *audit.Service) *Handler {
	return &Handler{service: service, auth: authMW, auditor: auditor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	phi := middleware.PHIAccess(h.auditor, model.AuditEntityPatient)
	patients := r.Group("/patients", h.auth.Authenticate())
	{
		patients.PUT("/me", middleware.RequireRole(model.RolePatient), h.UpsertProfile)
		patients.GET("/me", middleware.RequireRole(model.RolePatient), phi, h.GetProfile)
		patients.GET("/:id", phi, h.GetPatient)
	}
}

func (h *Handler) UpsertProfile(c *gin.Context) {
	var req model.UpsertPatientRequest
	if !handler.Bind(c, &req) {
		return
	}

	p, err := h.service.Upsert(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.service.Me(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, p)
}

// GetPatient is open to admins and to clinics the patient has booked with.
func (h *Handler) GetPatient(c *gin.Context) {
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
