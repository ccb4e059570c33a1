package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for the Product aggregate
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductInactive   = errors.New("product is not active")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockMismatch     = errors.New("stock quantity changed concurrently")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidThreshold  = errors.New("low stock threshold cannot be negative")
	ErrEmptyName         = errors.New("product name is required")
	ErrEmptyStoreID      = errors.New("store ID is required")
	ErrEmptyProductID    = errors.New("product ID is required")
)

// Product is the aggregate root for the catalog bounded context.
// A product record is scoped to a single store: the same productId in
// two stores is two independent records with independent stock.
type Product struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StoreID           string             `bson:"storeId" json:"storeId"`
	ProductID         string             `bson:"productId" json:"productId"`
	Name              string             `bson:"name" json:"name"`
	Description       string             `bson:"description,omitempty" json:"description,omitempty"`
	Category          string             `bson:"category,omitempty" json:"category,omitempty"`
	Price             Money              `bson:"price" json:"price"`
	StockQuantity     int                `bson:"stockQuantity" json:"stockQuantity"`
	LowStockThreshold int                `bson:"lowStockThreshold" json:"lowStockThreshold"`
	IsActive          bool               `bson:"isActive" json:"isActive"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewProduct creates a new Product aggregate
func NewProduct(storeID, productID, name string, price Money, stockQuantity, lowStockThreshold int) (*Product, error) {
	if storeID == "" {
		return nil, ErrEmptyStoreID
	}
	if productID == "" {
		return nil, ErrEmptyProductID
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	if stockQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if lowStockThreshold < 0 {
		return nil, ErrInvalidThreshold
	}

	now := time.Now().UTC()
	return &Product{
		ID:                primitive.NewObjectID(),
		StoreID:           storeID,
		ProductID:         productID,
		Name:              name,
		Price:             price,
		StockQuantity:     stockQuantity,
		LowStockThreshold: lowStockThreshold,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsLowStock returns true if stock is at or below the threshold
func (p *Product) IsLowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// CanFulfill returns true if the product is active and has enough stock.
// This is an advisory check only: the stock reducer makes the binding
// decision with a conditional update at deduction time.
func (p *Product) CanFulfill(quantity int) bool {
	return p.IsActive && p.StockQuantity >= quantity
}

// UpdatePrice changes the product price. Existing order snapshots keep
// the price they were created with.
func (p *Product) UpdatePrice(price Money) {
	p.Price = price
	p.UpdatedAt = time.Now().UTC()
}

// Deactivate soft-deletes the product. The record stays for order history.
func (p *Product) Deactivate() {
	p.IsActive = false
	p.UpdatedAt = time.Now().UTC()
}
