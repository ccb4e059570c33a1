package domain

import (
	"context"
	"time"
)

// ListOptions holds filtering and pagination for delivery listings
type ListOptions struct {
	Status   Status
	Date     *time.Time // filter to a single UTC day
	Page     int64
	PageSize int64
}

// DeliveryRepository defines persistence for the Delivery aggregate.
// Save and Update persist the aggregate with its uncommitted events as
// outbox records in one transaction.
type DeliveryRepository interface {
	Save(ctx context.Context, delivery *Delivery) error

	Update(ctx context.Context, delivery *Delivery) error

	GetByDeliveryID(ctx context.Context, deliveryID string) (*Delivery, error)

	GetByOrderID(ctx context.Context, orderID string) (*Delivery, error)

	ListByAgent(ctx context.Context, agentID string, opts ListOptions) ([]*Delivery, error)

	// AppendLocation pushes a tracking ping without rewriting the
	// aggregate document.
	AppendLocation(ctx context.Context, deliveryID string, ping LocationPing) error

	// CollectCash marks the COD amount collected, conditional on
	// codCollected being false. ErrAlreadyCollected when the flag was
	// already set, which is the idempotency guard for double submission.
	// Callers pass a session context to bind the flip to the payment
	// record written alongside it.
	CollectCash(ctx context.Context, deliveryID string, collectedAt time.Time) error
}
