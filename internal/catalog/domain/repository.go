package domain

import (
	"context"
)

// ListOptions holds filtering and pagination for product listings
type ListOptions struct {
	ActiveOnly bool
	Category   string
	Page       int64
	PageSize   int64
}

// ProductRepository defines persistence for the Product aggregate.
// Stock mutations are expressed as conditional updates, never as
// read-modify-write: the condition and the increment travel in one
// database operation.
type ProductRepository interface {
	Create(ctx context.Context, product *Product) error

	GetProduct(ctx context.Context, storeID, productID string) (*Product, error)

	// GetProducts fetches all requested products in a single batch read.
	// Missing products are simply absent from the result.
	GetProducts(ctx context.Context, storeID string, productIDs []string) ([]*Product, error)

	ListProducts(ctx context.Context, storeID string, opts ListOptions) ([]*Product, error)

	// AdjustStock applies a stock delta guarded by the current quantity.
	// For a negative delta the update matches only when
	// stockQuantity >= -delta; no match yields ErrInsufficientStock
	// (or ErrProductNotFound if the product does not exist).
	AdjustStock(ctx context.Context, storeID, productID string, delta int) error

	// SetStock overwrites the stock quantity conditional on the expected
	// current value; ErrStockMismatch when the value moved concurrently.
	SetStock(ctx context.Context, storeID, productID string, expected, value int) error

	UpdatePrice(ctx context.Context, storeID, productID string, price Money) error

	Deactivate(ctx context.Context, storeID, productID string) error
}
