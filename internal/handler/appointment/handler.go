package appointment

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/appointment"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *appointment.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments", h.auth.Authenticate())
	{
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("", middleware.RequireRole(model.RolePatient), h.CreateAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.POST("/:id/reschedule", middleware.RequireRole(model.RolePatient), h.RescheduleAppointment)
		appointments.POST("/:id/status", middleware.RequireRole(model.RoleClinic, model.RoleAdmin), h.ChangeStatus)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if !handler.Bind(c, &req) {
		return
	}

	apt, err := h.service.Create(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

// ListAppointments is scoped to the caller. Patients see their own
// bookings, clinics their clinic's, and admins everything.
func (h *Handler) ListAppointments(c *gin.Context) {
	var (
		filter = model.AppointmentFilter{Status: model.AppointmentStatus(c.Query("status"))}
		ok     bool
	)
	if filter.ClinicID, ok = handler.QueryUUID(c, "clinic_id"); !ok {
		return
	}
	if filter.DoctorID, ok = handler.QueryUUID(c, "doctor_id"); !ok {
		return
	}
	if filter.From, ok = handler.QueryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = handler.QueryTime(c, "to"); !ok {
		return
	}

	page := handler.Page(c)
	apts, total, err := h.service.List(c.Request.Context(), middleware.Actor(c), filter, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, apts, page, total)
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.StatusChangeRequest
	if !handler.Bind(c, &req) {
		return
	}

	apt, err := h.service.ChangeStatus(c.Request.Context(), middleware.Actor(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.CancelRequest
	if c.Request.ContentLength > 0 && !handler.Bind(c, &req) {
		return
	}

	apt, err := h.service.Cancel(c.Request.Context(), middleware.Actor(c), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) RescheduleAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.RescheduleRequest
	if !handler.Bind(c, &req) {
		return
	}

	apt, err := h.service.Reschedule(c.Request.Context(), middleware.Actor(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}
