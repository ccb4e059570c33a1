package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/internal/order/application"
	"github.com/commerce-platform/fulfillment/internal/order/domain"
	apperrors "github.com/commerce-platform/fulfillment/pkg/errors"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
)

// OrderHandler handles order HTTP requests
type OrderHandler struct {
	service *application.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(service *application.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers order routes
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/:orderId", h.GetOrder)
		orders.POST("/:orderId/confirm-cod", h.ConfirmCOD)
		orders.POST("/:orderId/cancel", h.CancelOrder)
	}

	router.GET("/stores/:storeId/orders", h.ListOrders)
}

// CartItemRequest is one requested line item
type CartItemRequest struct {
	ProductID string `json:"productId" binding:"required,product_id"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

// CreateOrderRequest is the payload for order creation
type CreateOrderRequest struct {
	StoreID       string            `json:"storeId" binding:"required,store_id"`
	CustomerName  string            `json:"customerName" binding:"required,max=200"`
	CustomerPhone string            `json:"customerPhone" binding:"required,max=20"`
	Street        string            `json:"street" binding:"required,max=300"`
	City          string            `json:"city" binding:"required,max=100"`
	ZipCode       string            `json:"zipCode" binding:"omitempty,max=20"`
	AddressNotes  string            `json:"addressNotes" binding:"omitempty,max=500"`
	Items         []CartItemRequest `json:"items" binding:"required,min=1,dive"`
	DeliveryFee   int64             `json:"deliveryFee" binding:"gte=0"`
	Currency      string            `json:"currency" binding:"required,currency"`
	PaymentMethod string            `json:"paymentMethod" binding:"required,oneof=COD ONLINE"`
}

// CreateOrder handles POST /orders
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req CreateOrderRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	items := make([]application.CartItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = application.CartItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	result, err := h.service.CreateOrder(c.Request.Context(), application.CreateOrderCommand{
		StoreID:       req.StoreID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Street:        req.Street,
		City:          req.City,
		ZipCode:       req.ZipCode,
		AddressNotes:  req.AddressNotes,
		Items:         items,
		DeliveryFee:   req.DeliveryFee,
		Currency:      req.Currency,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		responder.RespondWithAppError(mapOrderError(err))
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetOrder handles GET /orders/:orderId
func (h *OrderHandler) GetOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	order, err := h.service.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		responder.RespondWithAppError(mapOrderError(err))
		return
	}

	c.JSON(http.StatusOK, order)
}

// ConfirmCOD handles POST /orders/:orderId/confirm-cod
func (h *OrderHandler) ConfirmCOD(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	if err := h.service.ConfirmCODOrder(c.Request.Context(), c.Param("orderId")); err != nil {
		responder.RespondWithAppError(mapOrderError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

// CancelOrderRequest is the payload for order cancellation
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// CancelOrder handles POST /orders/:orderId/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	if err := h.service.CancelOrder(c.Request.Context(), c.Param("orderId"), req.Reason); err != nil {
		responder.RespondWithAppError(mapOrderError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ListOrders handles GET /stores/:storeId/orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var query struct {
		Status   string `form:"status" binding:"omitempty,oneof=PENDING_PAYMENT CONFIRMED ASSIGNED_TO_DELIVERY OUT_FOR_DELIVERY DELIVERED DELIVERY_FAILED CANCELLED"`
		Page     int64  `form:"page,default=1" binding:"gte=1"`
		PageSize int64  `form:"pageSize,default=20" binding:"gte=1,lte=100"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		responder.RespondBadRequest("invalid query parameters")
		return
	}

	orders, err := h.service.ListOrders(c.Request.Context(), c.Param("storeId"), domain.ListOptions{
		Status:   domain.Status(query.Status),
		Page:     query.Page,
		PageSize: query.PageSize,
	})
	if err != nil {
		responder.RespondWithAppError(mapOrderError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

func mapOrderError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return apperrors.ErrNotFound("order")
	case errors.Is(err, catalog.ErrProductNotFound):
		return apperrors.ErrValidation(err.Error())
	case errors.Is(err, catalog.ErrProductInactive),
		errors.Is(err, catalog.ErrInsufficientStock):
		return apperrors.ErrConflict(err.Error())
	case errors.Is(err, domain.ErrNoItems),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPayment):
		return apperrors.ErrValidation(err.Error())
	case errors.Is(err, domain.ErrOrderDelivered),
		errors.Is(err, domain.ErrOrderCancelled),
		errors.Is(err, domain.ErrOrderNotPayable),
		errors.Is(err, domain.ErrInvalidStatus):
		return apperrors.ErrConflict(err.Error())
	default:
		return apperrors.FromError(err)
	}
}
