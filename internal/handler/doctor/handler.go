package doctor

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/doctor"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *doctor.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *doctor.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	clinicOnly := []gin.HandlerFunc{h.auth.Authenticate(), middleware.RequireRole(model.RoleClinic)}

	r.GET("/clinics/:id/doctors", h.ListDoctors)
	r.POST("/clinics/:id/doctors", append(clinicOnly, h.CreateDoctor)...)

	doctors := r.Group("/doctors")
	{
		doctors.GET("/:id", h.GetDoctor)
		doctors.GET("/:id/availability", h.GetAvailability)
		doctors.PUT("/:id", append(clinicOnly, h.UpdateDoctor)...)
	}
}

func (h *Handler) ListDoctors(c *gin.Context) {
	clinicID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	doctors, err := h.service.ListByClinic(c.Request.Context(), clinicID, c.Query("include_inactive") != "true")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) CreateDoctor(c *gin.Context) {
	clinicID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.DoctorRequest
	if !handler.Bind(c, &req) {
		return
	}

	d, err := h.service.Create(c.Request.Context(), middleware.Actor(c), clinicID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, d)
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	d, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

func (h *Handler) UpdateDoctor(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.DoctorRequest
	if !handler.Bind(c, &req) {
		return
	}

	d, err := h.service.Update(c.Request.Context(), middleware.Actor(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

// GetAvailability lists the open slots for ?date=YYYY-MM-DD.
func (h *Handler) GetAvailability(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		httputil.RespondWithError(c, errors.BadRequest("date is required", nil))
		return
	}

	slots, err := h.service.Availability(c.Request.Context(), id, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, slots)
}
