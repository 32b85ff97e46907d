package review

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/review"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *review.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *review.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/clinics/:id/reviews", h.ListClinicReviews)
	r.POST("/reviews", h.auth.Authenticate(), middleware.RequireRole(model.RolePatient), h.CreateReview)
}

func (h *Handler) CreateReview(c *gin.Context) {
	var req model.CreateReviewRequest
	if !handler.Bind(c, &req) {
		return
	}

	rv, err := h.service.Create(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, rv)
}

func (h *Handler) ListClinicReviews(c *gin.Context) {
	clinicID, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	page := handler.Page(c)
	reviews, total, err := h.service.ListByClinic(c.Request.Context(), clinicID, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.List(c, reviews, page, total)
}
