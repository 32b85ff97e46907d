package webhook

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/httputil"
)

const PayMongoSignatureHeader = "Paymongo-Signature"

// Processor is the payment service as seen by the webhook endpoints.
type Processor interface {
	HandleAdyenWebhook(ctx context.Context, body []byte) error
	HandlePayMongoWebhook(ctx context.Context, header string, body []byte) error
}

// Handler receives provider callbacks. These routes carry no bearer auth;
// every body is authenticated by its HMAC signature instead.
type Handler struct {
	processor Processor
}

func NewHandler(processor Processor) *Handler {
	return &Handler{processor: processor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/adyen", h.Adyen)
		webhooks.POST("/paymongo", h.PayMongo)
	}
}

// Adyen answers with the literal "[accepted]" the platform expects.
func (h *Handler) Adyen(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := h.processor.HandleAdyenWebhook(c.Request.Context(), body); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.String(http.StatusOK, "[accepted]")
}

func (h *Handler) PayMongo(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	if err := h.processor.HandlePayMongoWebhook(c.Request.Context(), c.GetHeader(PayMongoSignatureHeader), body); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// readBody keeps the exact bytes, since signatures cover the raw payload.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("failed to read body", err))
		return nil, false
	}
	return body, true
}
