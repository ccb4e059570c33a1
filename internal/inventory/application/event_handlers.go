package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/commerce-platform/fulfillment/internal/inventory/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
)

// StockReducer is the inventory surface the event handlers drive
type StockReducer interface {
	ReduceStockForOrder(ctx context.Context, storeID, orderID string, items []domain.DebitItem) error
	RestoreStockForOrder(ctx context.Context, storeID, orderID string) error
	ReportDeductionFailure(ctx context.Context, storeID, orderID string, failed []domain.FailedItem, reason string) error
}

// EventHandlers adapts the inventory service to the Kafka consumer.
// Permanent failures (insufficient stock, oversized orders) are reported
// via StockDeductionFailed and treated as handled so the message
// commits; transient failures propagate so the message is redelivered.
type EventHandlers struct {
	service StockReducer
	logger  *slog.Logger
}

// NewEventHandlers creates consumer handlers for order events
func NewEventHandlers(service StockReducer, logger *slog.Logger) *EventHandlers {
	return &EventHandlers{
		service: service,
		logger:  logger,
	}
}

// HandleOrderEvent dispatches an order-topic envelope. The decode is
// exhaustive over the closed event set; an unknown type is an error, not
// a silent skip.
func (h *EventHandlers) HandleOrderEvent(ctx context.Context, env *events.Envelope) error {
	event, err := events.Decode(env)
	if err != nil {
		return err
	}

	switch e := event.(type) {
	case *events.OrderPlaced:
		return h.handleOrderPlaced(ctx, e)
	case *events.OrderCancelled:
		return h.service.RestoreStockForOrder(ctx, e.StoreID, e.OrderID)
	default:
		// Other event types on this topic are not inventory concerns.
		h.logger.Debug("Ignoring event type", "eventType", env.Type, "eventId", env.ID)
		return nil
	}
}

func (h *EventHandlers) handleOrderPlaced(ctx context.Context, e *events.OrderPlaced) error {
	items := make([]domain.DebitItem, len(e.Items))
	for i, line := range e.Items {
		items[i] = domain.DebitItem{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	err := h.service.ReduceStockForOrder(ctx, e.StoreID, e.OrderID, items)
	if err == nil {
		return nil
	}

	var insufficientErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficientErr):
		h.logger.Warn("Stock deduction rejected",
			"orderId", e.OrderID,
			"storeId", e.StoreID,
			"failedItems", len(insufficientErr.Items),
		)
		return h.service.ReportDeductionFailure(ctx, e.StoreID, e.OrderID, insufficientErr.Items, "insufficient stock")
	case errors.Is(err, domain.ErrTooManyItems):
		h.logger.Warn("Stock deduction rejected",
			"orderId", e.OrderID,
			"storeId", e.StoreID,
			"items", len(items),
			"reason", "too many items",
		)
		failed := make([]domain.FailedItem, len(items))
		for i, item := range items {
			failed[i] = domain.FailedItem{ProductID: item.ProductID, Requested: item.Quantity}
		}
		return h.service.ReportDeductionFailure(ctx, e.StoreID, e.OrderID, failed, "too many items")
	default:
		return err
	}
}
