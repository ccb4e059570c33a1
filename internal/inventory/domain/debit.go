package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for the stock debit ledger
var (
	ErrTooManyItems   = errors.New("order exceeds the per-order item ceiling")
	ErrAlreadyDebited = errors.New("stock already debited for this order")
	ErrDebitNotFound  = errors.New("no stock debit recorded for this order")
)

// MaxItemsPerOrder is the hard ceiling on distinct line items in one
// debit. Orders above it are rejected outright, never truncated.
const MaxItemsPerOrder = 100

// DebitStatus is the lifecycle state of a stock debit
type DebitStatus string

const (
	DebitStatusDebited  DebitStatus = "debited"
	DebitStatusReversed DebitStatus = "reversed"
)

// DebitItem is one deducted line
type DebitItem struct {
	ProductID string `bson:"productId" json:"productId"`
	Quantity  int    `bson:"quantity" json:"quantity"`
}

// StockDebit is the per-order deduction ledger record. It is inserted in
// the same transaction as the stock decrements, keyed uniquely by
// orderId: a redelivered OrderPlaced hits the duplicate key and becomes
// a no-op, which makes the at-least-once consumer exactly-once
// effective. It also anchors the restore path: a cancel observed before
// the placement restores nothing because no debit record exists.
type StockDebit struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID    string             `bson:"orderId" json:"orderId"`
	StoreID    string             `bson:"storeId" json:"storeId"`
	Items      []DebitItem        `bson:"items" json:"items"`
	Status     DebitStatus        `bson:"status" json:"status"`
	DebitedAt  time.Time          `bson:"debitedAt" json:"debitedAt"`
	ReversedAt *time.Time         `bson:"reversedAt,omitempty" json:"reversedAt,omitempty"`
}

// NewStockDebit creates a new debit record for an order
func NewStockDebit(orderID, storeID string, items []DebitItem) (*StockDebit, error) {
	if len(items) == 0 {
		return nil, errors.New("debit must contain at least one item")
	}
	if len(items) > MaxItemsPerOrder {
		return nil, ErrTooManyItems
	}

	return &StockDebit{
		ID:        primitive.NewObjectID(),
		OrderID:   orderID,
		StoreID:   storeID,
		Items:     items,
		Status:    DebitStatusDebited,
		DebitedAt: time.Now().UTC(),
	}, nil
}

// FailedItem identifies a line that failed its stock condition
type FailedItem struct {
	ProductID string
	Requested int
}

// InsufficientStockError reports which lines could not be covered.
// The whole debit was rolled back; no partial deduction happened.
type InsufficientStockError struct {
	OrderID string
	Items   []FailedItem
}

// Error implements the error interface
func (e *InsufficientStockError) Error() string {
	ids := make([]string, len(e.Items))
	for i, item := range e.Items {
		ids[i] = fmt.Sprintf("%s(x%d)", item.ProductID, item.Requested)
	}
	return fmt.Sprintf("insufficient stock for order %s: %s", e.OrderID, strings.Join(ids, ", "))
}
