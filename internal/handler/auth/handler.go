package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/auth"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	svc  *auth.Service
	auth *middleware.AuthMiddleware
}

func NewHandler(svc *auth.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{svc: svc, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.GET("/me", h.auth.Authenticate(), h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.Bind(c, &req) {
		return
	}

	user, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.Bind(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.svc.Me(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, user)
}
