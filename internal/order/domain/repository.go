package domain

import (
	"context"
)

// ListOptions holds filtering and pagination for order listings
type ListOptions struct {
	Status   Status
	Page     int64
	PageSize int64
}

// OrderRepository defines persistence for the Order aggregate.
// Save and Update persist the aggregate together with its uncommitted
// domain events (as outbox records) in a single transaction, then clear
// the events. An order is never stored without its events and an event
// is never stored without its order.
type OrderRepository interface {
	Save(ctx context.Context, order *Order) error

	Update(ctx context.Context, order *Order) error

	GetByOrderID(ctx context.Context, orderID string) (*Order, error)

	ListByStore(ctx context.Context, storeID string, opts ListOptions) ([]*Order, error)
}
