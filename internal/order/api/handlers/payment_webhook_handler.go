package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/commerce-platform/fulfillment/internal/order/application"
	"github.com/commerce-platform/fulfillment/internal/order/domain"
	"github.com/commerce-platform/fulfillment/internal/payment"
	apperrors "github.com/commerce-platform/fulfillment/pkg/errors"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
)

// SignatureHeader carries the provider's HMAC-SHA256 hex signature
const SignatureHeader = "X-Payment-Signature"

// PaymentWebhookHandler handles the payment provider's confirmation
// callbacks. The signature is computed over the raw body, so the body is
// read before any JSON parsing.
type PaymentWebhookHandler struct {
	service *application.OrderService
	logger  *slog.Logger
}

// NewPaymentWebhookHandler creates a new payment webhook handler
func NewPaymentWebhookHandler(service *application.OrderService, logger *slog.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the webhook route
func (h *PaymentWebhookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/payments/callback", h.HandleCallback)
}

type paymentCallbackBody struct {
	OrderID    string `json:"orderId"`
	PaymentRef string `json:"paymentRef"`
	Status     string `json:"status"`
}

// HandleCallback handles POST /payments/callback
func (h *PaymentWebhookHandler) HandleCallback(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		responder.RespondWithAppError(apperrors.ErrUnauthorized("missing payment signature"))
		return
	}

	rawBody, err := c.GetRawData()
	if err != nil {
		responder.RespondBadRequest("failed to read request body")
		return
	}

	var body paymentCallbackBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		responder.RespondBadRequest("invalid callback body")
		return
	}
	if body.OrderID == "" || body.PaymentRef == "" {
		responder.RespondBadRequest("orderId and paymentRef are required")
		return
	}

	err = h.service.ConfirmPayment(c.Request.Context(), application.PaymentCallback{
		OrderID:    body.OrderID,
		PaymentRef: body.PaymentRef,
		RawBody:    rawBody,
		Signature:  signature,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			responder.RespondWithAppError(apperrors.ErrUnauthorized("invalid payment signature"))
		case errors.Is(err, domain.ErrOrderNotFound):
			responder.RespondNotFound("order")
		default:
			responder.RespondWithAppError(mapOrderError(err))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}
