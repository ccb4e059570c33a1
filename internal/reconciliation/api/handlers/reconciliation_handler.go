package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	delivery "github.com/commerce-platform/fulfillment/internal/delivery/domain"
	"github.com/commerce-platform/fulfillment/internal/reconciliation/application"
	"github.com/commerce-platform/fulfillment/internal/reconciliation/domain"
	apperrors "github.com/commerce-platform/fulfillment/pkg/errors"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
)

// ReconciliationHandler handles cash reconciliation HTTP requests
type ReconciliationHandler struct {
	service *application.ReconciliationService
	logger  *slog.Logger
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(service *application.ReconciliationService, logger *slog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers reconciliation routes
func (h *ReconciliationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/deliveries/:deliveryId/collect-cash", h.RecordCashCollection)
	router.GET("/deliveries/:deliveryId/collection", h.GetCollection)
	router.GET("/agents/:agentId/collections", h.ListCollections)
	router.GET("/agents/:agentId/cash-summary", h.GetCashSummary)
}

// RecordCashCollectionRequest is the payload for recording a COD collection
type RecordCashCollectionRequest struct {
	AmountCollected int64  `json:"amountCollected" binding:"gte=0"`
	Notes           string `json:"notes" binding:"omitempty,max=500"`
}

// RecordCashCollection handles POST /deliveries/:deliveryId/collect-cash
func (h *ReconciliationHandler) RecordCashCollection(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req RecordCashCollectionRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	record, err := h.service.RecordCashCollection(c.Request.Context(), application.RecordCashCollectionCommand{
		DeliveryID:      c.Param("deliveryId"),
		AmountCollected: req.AmountCollected,
		Notes:           req.Notes,
	})
	if err != nil {
		responder.RespondWithAppError(mapReconciliationError(err))
		return
	}

	c.JSON(http.StatusCreated, record)
}

// GetCollection handles GET /deliveries/:deliveryId/collection
func (h *ReconciliationHandler) GetCollection(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	record, err := h.service.GetCollection(c.Request.Context(), c.Param("deliveryId"))
	if err != nil {
		responder.RespondWithAppError(mapReconciliationError(err))
		return
	}

	c.JSON(http.StatusOK, record)
}

// ListCollections handles GET /agents/:agentId/collections
func (h *ReconciliationHandler) ListCollections(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	date, appErr := parseDateQuery(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	records, err := h.service.ListCollections(c.Request.Context(), c.Param("agentId"), date)
	if err != nil {
		responder.RespondWithAppError(mapReconciliationError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collections": records,
		"count":       len(records),
	})
}

// GetCashSummary handles GET /agents/:agentId/cash-summary
func (h *ReconciliationHandler) GetCashSummary(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	date, appErr := parseDateQuery(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	summary, err := h.service.GetCashSummary(c.Request.Context(), c.Param("agentId"), date)
	if err != nil {
		responder.RespondWithAppError(mapReconciliationError(err))
		return
	}

	c.JSON(http.StatusOK, summary)
}

// parseDateQuery reads the optional date query parameter, defaulting to
// the current UTC day
func parseDateQuery(c *gin.Context) (time.Time, *apperrors.AppError) {
	raw := c.Query("date")
	if raw == "" {
		return time.Now().UTC(), nil
	}

	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, apperrors.ErrValidation("date must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

func mapReconciliationError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, delivery.ErrDeliveryNotFound):
		return apperrors.ErrNotFound("delivery")
	case errors.Is(err, domain.ErrRecordNotFound):
		return apperrors.ErrNotFound("payment record")
	case errors.Is(err, delivery.ErrNotCOD):
		return apperrors.ErrBadRequest(err.Error())
	case errors.Is(err, delivery.ErrAlreadyCollected),
		errors.Is(err, domain.ErrRecordExists):
		return apperrors.ErrAlreadyCollected("cash already collected for this delivery")
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, catalog.ErrNegativeMoney):
		return apperrors.ErrValidation("collected amount must not be negative")
	default:
		return apperrors.FromError(err)
	}
}
