package application

import (
	"context"
	"log/slog"

	"github.com/commerce-platform/fulfillment/internal/catalog/domain"
)

// CatalogService exposes product ledger operations
type CatalogService struct {
	products domain.ProductRepository
	logger   *slog.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(products domain.ProductRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		products: products,
		logger:   logger,
	}
}

// CreateProductCommand holds the input for creating a product
type CreateProductCommand struct {
	StoreID           string
	ProductID         string
	Name              string
	Description       string
	Category          string
	PriceAmount       int64
	Currency          string
	StockQuantity     int
	LowStockThreshold int
}

// CreateProduct registers a new product for a store
func (s *CatalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (*domain.Product, error) {
	price, err := domain.NewMoney(cmd.PriceAmount, cmd.Currency)
	if err != nil {
		return nil, err
	}

	product, err := domain.NewProduct(cmd.StoreID, cmd.ProductID, cmd.Name, price, cmd.StockQuantity, cmd.LowStockThreshold)
	if err != nil {
		return nil, err
	}
	product.Description = cmd.Description
	product.Category = cmd.Category

	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		"storeId", product.StoreID,
		"productId", product.ProductID,
		"stockQuantity", product.StockQuantity,
	)

	return product, nil
}

// GetProduct fetches a single product
func (s *CatalogService) GetProduct(ctx context.Context, storeID, productID string) (*domain.Product, error) {
	return s.products.GetProduct(ctx, storeID, productID)
}

// GetProducts fetches multiple products in one batch read
func (s *CatalogService) GetProducts(ctx context.Context, storeID string, productIDs []string) ([]*domain.Product, error) {
	return s.products.GetProducts(ctx, storeID, productIDs)
}

// ListProducts lists products for a store
func (s *CatalogService) ListProducts(ctx context.Context, storeID string, opts domain.ListOptions) ([]*domain.Product, error) {
	return s.products.ListProducts(ctx, storeID, opts)
}

// AdjustStock applies a manual stock delta (restock or correction).
// The repository enforces the non-negative invariant with a conditional
// update; callers never read-modify-write.
func (s *CatalogService) AdjustStock(ctx context.Context, storeID, productID string, delta int, reason string) error {
	if delta == 0 {
		return domain.ErrInvalidQuantity
	}

	if err := s.products.AdjustStock(ctx, storeID, productID, delta); err != nil {
		return err
	}

	s.logger.Info("Stock adjusted",
		"storeId", storeID,
		"productId", productID,
		"delta", delta,
		"reason", reason,
	)

	return nil
}

// SetStock overwrites the stock quantity after a physical count,
// conditional on the expected current value
func (s *CatalogService) SetStock(ctx context.Context, storeID, productID string, expected, value int) error {
	if value < 0 {
		return domain.ErrInvalidQuantity
	}

	if err := s.products.SetStock(ctx, storeID, productID, expected, value); err != nil {
		return err
	}

	s.logger.Info("Stock set",
		"storeId", storeID,
		"productId", productID,
		"expected", expected,
		"value", value,
	)

	return nil
}

// UpdatePrice changes a product price. Orders already created keep their
// snapshot prices.
func (s *CatalogService) UpdatePrice(ctx context.Context, storeID, productID string, amount int64, currency string) error {
	price, err := domain.NewMoney(amount, currency)
	if err != nil {
		return err
	}

	if err := s.products.UpdatePrice(ctx, storeID, productID, price); err != nil {
		return err
	}

	s.logger.Info("Price updated",
		"storeId", storeID,
		"productId", productID,
		"price", price.String(),
	)

	return nil
}

// DeactivateProduct soft-deletes a product
func (s *CatalogService) DeactivateProduct(ctx context.Context, storeID, productID string) error {
	if err := s.products.Deactivate(ctx, storeID, productID); err != nil {
		return err
	}

	s.logger.Info("Product deactivated", "storeId", storeID, "productId", productID)
	return nil
}
