package payment

import (
	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/internal/handler"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/service/payment"
	"github.com/igabaycare/care-api/pkg/httputil"
)

type Handler struct {
	service *payment.Service
	auth    *middleware.AuthMiddleware
}

func NewHandler(service *payment.Service, authMW *middleware.AuthMiddleware) *Handler {
	return &Handler{service: service, auth: authMW}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments", h.auth.Authenticate())
	{
		payments.GET("/transactions/:id", h.GetTransaction)

		patient := payments.Group("", middleware.RequireRole(model.RolePatient))
		patient.POST("/adyen/sessions", h.CreateAdyenSession)
		patient.POST("/adyen/payments", h.MakeAdyenPayment)
		patient.POST("/adyen/payment-details", h.AdyenPaymentDetails)
		patient.POST("/paymongo/gcash", h.CreateGCashCheckout)
	}
}

func (h *Handler) CreateAdyenSession(c *gin.Context) {
	var req model.AdyenSessionRequest
	if !handler.Bind(c, &req) {
		return
	}

	resp, err := h.service.StartAdyenSession(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) MakeAdyenPayment(c *gin.Context) {
	var req model.AdyenPaymentRequest
	if !handler.Bind(c, &req) {
		return
	}

	resp, err := h.service.MakeAdyenPayment(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) AdyenPaymentDetails(c *gin.Context) {
	var req model.AdyenDetailsRequest
	if !handler.Bind(c, &req) {
		return
	}

	resp, err := h.service.AdyenPaymentDetails(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) CreateGCashCheckout(c *gin.Context) {
	var req model.GCashCheckoutRequest
	if !handler.Bind(c, &req) {
		return
	}

	resp, err := h.service.StartGCash(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) GetTransaction(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	txn, err := h.service.GetTransaction(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, txn)
}
