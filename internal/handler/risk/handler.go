package risk

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/risk"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *risk.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *risk.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	risk := r.Group("/risk")
	{
		risk.POST("/behavior", h.ClassifyBehavior)

		admin := risk.Group("", h.auth.Authenticate(), middleware.RequireRole(model.RoleAdmin))
		admin.POST("/assess", h.Assess)
		admin.POST("/batch-assess", h.BatchAssess)
		admin.GET("/model-info", h.ModelInfo)
	}
}

func (h *Handler) Assess(c *gin.Context) {
	var req model.ClinicProfile
	if !handler.Bind(c, &req) {
		return
	}

	result, err := h.service.Assess(&req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) BatchAssess(c *gin.Context) {
	var req model.BatchAssessRequest
	if !handler.Bind(c, &req) {
		return
	}

	result, err := h.service.AssessBatch(&req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) ModelInfo(c *gin.Context) {
	httputil.RespondWithSuccess(c, h.service.ModelInfo())
}

func (h *Handler) ClassifyBehavior(c *gin.Context) {
	var req model.BehaviorMetrics
	if !handler.Bind(c, &req) {
		return
	}
	httputil.RespondWithSuccess(c, risk.ClassifyBehavior(&req))
}
