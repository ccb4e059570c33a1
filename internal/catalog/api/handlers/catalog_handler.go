package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/commerce-platform/fulfillment/internal/catalog/application"
	"github.com/commerce-platform/fulfillment/internal/catalog/domain"
	apperrors "github.com/commerce-platform/fulfillment/pkg/errors"
	"github.com/commerce-platform/fulfillment/pkg/middleware"
)

// CatalogHandler handles product ledger HTTP requests
type CatalogHandler struct {
	service *application.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(service *application.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers catalog routes
func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	products := router.Group("/stores/:storeId/products")
	{
		products.POST("", h.CreateProduct)
		products.GET("", h.ListProducts)
		products.GET("/:productId", h.GetProduct)
		products.POST("/:productId/stock/adjust", h.AdjustStock)
		products.PUT("/:productId/stock", h.SetStock)
		products.PUT("/:productId/price", h.UpdatePrice)
		products.DELETE("/:productId", h.DeactivateProduct)
	}
}

// CreateProductRequest is the payload for product creation
type CreateProductRequest struct {
	ProductID         string `json:"productId" binding:"required,product_id"`
	Name              string `json:"name" binding:"required,max=200"`
	Description       string `json:"description" binding:"omitempty,max=2000"`
	Category          string `json:"category" binding:"omitempty,max=100"`
	PriceAmount       int64  `json:"priceAmount" binding:"required,gte=0"`
	Currency          string `json:"currency" binding:"required,currency"`
	StockQuantity     int    `json:"stockQuantity" binding:"gte=0"`
	LowStockThreshold int    `json:"lowStockThreshold" binding:"gte=0"`
}

// CreateProduct handles POST /stores/:storeId/products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req CreateProductRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	product, err := h.service.CreateProduct(c.Request.Context(), application.CreateProductCommand{
		StoreID:           c.Param("storeId"),
		ProductID:         req.ProductID,
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		PriceAmount:       req.PriceAmount,
		Currency:          req.Currency,
		StockQuantity:     req.StockQuantity,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		responder.RespondWithAppError(mapCatalogError(err))
		return
	}

	c.JSON(http.StatusCreated, product)
}

// GetProduct handles GET /stores/:storeId/products/:productId
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	product, err := h.service.GetProduct(c.Request.Context(), c.Param("storeId"), c.Param("productId"))
	if err != nil {
		responder.RespondWithAppError(mapCatalogError(err))
		return
	}

	c.JSON(http.StatusOK, product)
}

// ListProducts handles GET /stores/:storeId/products
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	opts := domain.ListOptions{
		ActiveOnly: c.DefaultQuery("activeOnly", "true") == "true",
		Category:   c.Query("category"),
	}
	page, pageSize, appErr := parsePagination(c)
	if appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	opts.Page = page
	opts.PageSize = pageSize

	products, err := h.service.ListProducts(c.Request.Context(), c.Param("storeId"), opts)
	if err != nil {
		responder.RespondWithAppError(mapCatalogError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// AdjustStockRequest is the payload for a manual stock adjustment
type AdjustStockRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required,max=500"`
}

// AdjustStock handles POST /stores/:storeId/products/:productId/stock/adjust
func (h *CatalogHandler) AdjustStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req AdjustStockRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	err := h.service.AdjustStock(c.Request.Context(), c.Param("storeId"), c.Param("productId"), req.Delta, req.Reason)
	if err != nil {
		responder.RespondWithAppError(mapCatalogError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "adjusted"})
}

// SetStockRequest is the payload for an absolute stock overwrite
type SetStockRequest struct {
	Expected int `json:"expected" binding:"gte=0"`
	Value    int `json:"value" binding:"gte=0"`
}

// SetStock handles PUT /stores/:storeId/products/:productId/stock
func (h *CatalogHandler) SetStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req SetStockRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	err := h.service.SetStock(c.Request.Context(), c.Param("storeId"), c.Param("productId"), req.Expected, req.Value)
	if err != nil {
		responder.RespondWithAppError(mapCatalogError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// UpdatePriceRequest is the payload for a price update
type UpdatePriceRequest struct {
	Amount   int64  `json:"amount" binding:"required,gte=0"`
	Currency string `json:"currency" binding:"required,currency"`
}

// UpdatePrice handles PUT /stores/:storeId/products/:productId/price
func (h *CatalogHandler) UpdatePrice(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	var req UpdatePriceRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	err := h.service.UpdatePrice(c.Request.Context(), c.Param("storeId"), c.Param("productId"), req.Amount, req.Currency)
	if err != nil {
		responder.RespondWithAppError(mapCatalogError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// DeactivateProduct handles DELETE /stores/:storeId/products/:productId
func (h *CatalogHandler) DeactivateProduct(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger)

	err := h.service.DeactivateProduct(c.Request.Context(), c.Param("storeId"), c.Param("productId"))
	if err != nil {
		responder.RespondWithAppError(mapCatalogError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func parsePagination(c *gin.Context) (int64, int64, *apperrors.AppError) {
	var query struct {
		Page     int64 `form:"page,default=1" binding:"gte=1"`
		PageSize int64 `form:"pageSize,default=20" binding:"gte=1,lte=100"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		return 0, 0, apperrors.ErrBadRequest("invalid pagination parameters")
	}
	return query.Page, query.PageSize, nil
}

func mapCatalogError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return apperrors.ErrNotFound("product")
	case errors.Is(err, domain.ErrInsufficientStock):
		return apperrors.ErrInsufficientStock("stock would go negative")
	case errors.Is(err, domain.ErrStockMismatch):
		return apperrors.ErrConflict("stock quantity changed concurrently, re-read and retry")
	case errors.Is(err, domain.ErrProductInactive):
		return apperrors.ErrConflict("product is not active")
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidThreshold),
		errors.Is(err, domain.ErrEmptyName),
		errors.Is(err, domain.ErrEmptyStoreID),
		errors.Is(err, domain.ErrEmptyProductID),
		errors.Is(err, domain.ErrNegativeMoney),
		errors.Is(err, domain.ErrInvalidCurrency):
		return apperrors.ErrValidation(err.Error())
	default:
		return apperrors.FromError(err)
	}
}
