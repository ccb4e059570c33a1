package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/commerce-platform/fulfillment/internal/delivery/application"
	"github.com/commerce-platform/fulfillment/internal/delivery/domain"
	order "github.com/commerce-platform/fulfillment/internal/order/domain"
	apperrors "github.com/commerce-platform/fulfillment/pkg/errors"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
)

// DeliveryHandler handles delivery HTTP requests
type DeliveryHandler struct {
	service *application.DeliveryService
	logger  *slog.Logger
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(service *application.DeliveryService, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers delivery routes
func (h *DeliveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	deliveries := router.Group("/deliveries")
	{
		deliveries.POST("", h.AssignOrder)
		deliveries.GET("/:deliveryId", h.GetDelivery)
		deliveries.PATCH("/:deliveryId/status", h.UpdateStatus)
		deliveries.POST("/:deliveryId/location", h.TrackLocation)
	}

	router.GET("/agents/:agentId/deliveries", h.ListByAgent)
	router.GET("/orders/:orderId/delivery", h.GetDeliveryForOrder)
}

// AssignOrderRequest is the payload for order assignment
type AssignOrderRequest struct {
	OrderID       string     `json:"orderId" binding:"required,order_id"`
	AgentID       string     `json:"agentId" binding:"required,agent_id"`
	EstimatedTime *time.Time `json:"estimatedTime" binding:"omitempty"`
}

// AssignOrder handles POST /deliveries
func (h *DeliveryHandler) AssignOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req AssignOrderRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	delivery, err := h.service.AssignOrder(c.Request.Context(), application.AssignOrderCommand{
		OrderID:       req.OrderID,
		AgentID:       req.AgentID,
		EstimatedTime: req.EstimatedTime,
	})
	if err != nil {
		responder.RespondWithAppError(mapDeliveryError(err))
		return
	}

	c.JSON(http.StatusCreated, delivery)
}

// GetDelivery handles GET /deliveries/:deliveryId
func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	delivery, err := h.service.GetDelivery(c.Request.Context(), c.Param("deliveryId"))
	if err != nil {
		responder.RespondWithAppError(mapDeliveryError(err))
		return
	}

	c.JSON(http.StatusOK, delivery)
}

// GetDeliveryForOrder handles GET /orders/:orderId/delivery
func (h *DeliveryHandler) GetDeliveryForOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	delivery, err := h.service.GetDeliveryForOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		responder.RespondWithAppError(mapDeliveryError(err))
		return
	}

	c.JSON(http.StatusOK, delivery)
}

// UpdateStatusRequest is the payload for a status transition
type UpdateStatusRequest struct {
	Status    string   `json:"status" binding:"required,oneof=PENDING PICKED_UP IN_TRANSIT DELIVERED FAILED"`
	Note      string   `json:"note" binding:"omitempty,max=500"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

// UpdateStatus handles PATCH /deliveries/:deliveryId/status
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req UpdateStatusRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	cmd := application.UpdateStatusCommand{
		DeliveryID: c.Param("deliveryId"),
		NewStatus:  domain.Status(req.Status),
		Note:       req.Note,
	}
	if req.Latitude != nil && req.Longitude != nil {
		cmd.Location = &domain.LocationPing{
			Latitude:   *req.Latitude,
			Longitude:  *req.Longitude,
			RecordedAt: time.Now().UTC(),
		}
	}

	delivery, err := h.service.UpdateStatus(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithAppError(mapDeliveryError(err))
		return
	}

	c.JSON(http.StatusOK, delivery)
}

// TrackLocationRequest is the payload for a tracking ping
type TrackLocationRequest struct {
	Latitude  float64 `json:"latitude" binding:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" binding:"required,gte=-180,lte=180"`
}

// TrackLocation handles POST /deliveries/:deliveryId/location
func (h *DeliveryHandler) TrackLocation(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req TrackLocationRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	err := h.service.TrackLocation(c.Request.Context(), c.Param("deliveryId"), req.Latitude, req.Longitude)
	if err != nil {
		responder.RespondWithAppError(mapDeliveryError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// ListByAgent handles GET /agents/:agentId/deliveries
func (h *DeliveryHandler) ListByAgent(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var query struct {
		Status   string `form:"status" binding:"omitempty,oneof=PENDING PICKED_UP IN_TRANSIT DELIVERED FAILED"`
		Date     string `form:"date" binding:"omitempty,datetime=2006-01-02"`
		Page     int64  `form:"page,default=1" binding:"gte=1"`
		PageSize int64  `form:"pageSize,default=20" binding:"gte=1,lte=100"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		responder.RespondBadRequest("invalid query parameters")
		return
	}

	opts := domain.ListOptions{
		Status:   domain.Status(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if query.Date != "" {
		day, err := time.Parse("2006-01-02", query.Date)
		if err != nil {
			responder.RespondBadRequest("invalid date, expected YYYY-MM-DD")
			return
		}
		opts.Date = &day
	}

	deliveries, err := h.service.ListByAgent(c.Request.Context(), c.Param("agentId"), opts)
	if err != nil {
		responder.RespondWithAppError(mapDeliveryError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

func mapDeliveryError(err error) *apperrors.AppError {
	var transitionErr *domain.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		appErr := apperrors.ErrInvalidTransition(transitionErr.Error())
		allowed := ""
		for i, s := range transitionErr.Allowed {
			if i > 0 {
				allowed += ", "
			}
			allowed += string(s)
		}
		return appErr.WithDetail("allowedTransitions", allowed)
	}

	switch {
	case errors.Is(err, domain.ErrDeliveryNotFound):
		return apperrors.ErrNotFound("delivery")
	case errors.Is(err, order.ErrOrderNotFound):
		return apperrors.ErrNotFound("order")
	case errors.Is(err, domain.ErrDeliveryExists):
		return apperrors.ErrConflict("order already has a delivery")
	case errors.Is(err, domain.ErrEmptyAgentID):
		return apperrors.ErrValidation(err.Error())
	case errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrOrderCancelled):
		return apperrors.ErrConflict(err.Error())
	default:
		return apperrors.FromError(err)
	}
}
