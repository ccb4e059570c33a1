package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/commerce-platform/fulfillment/internal/delivery/domain"
	"github.com/commerce-platform/fulfillment/internal/notification"
	order "github.com/commerce-platform/fulfillment/internal/order/domain"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
)

// DeliveryService exposes delivery state machine operations
type DeliveryService struct {
	deliveries domain.DeliveryRepository
	orders     order.OrderRepository
	notifier   notification.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(
	deliveries domain.DeliveryRepository,
	orders order.OrderRepository,
	notifier notification.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		deliveries: deliveries,
		orders:     orders,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
	}
}

// AssignOrderCommand holds the input for assigning an order to an agent
type AssignOrderCommand struct {
	OrderID       string
	AgentID       string
	EstimatedTime *time.Time
}

// AssignOrder creates a PENDING delivery for a confirmed order with a
// denormalized customer/amount snapshot, then mirrors the assignment
// onto the order
func (s *DeliveryService) AssignOrder(ctx context.Context, cmd AssignOrderCommand) (*domain.Delivery, error) {
	o, err := s.orders.GetByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if err := o.AssignAgent(cmd.AgentID); err != nil {
		return nil, err
	}

	deliveryID := "DLV-" + pkgmongo.GenerateIDString()
	delivery, err := domain.NewDelivery(deliveryID, o, cmd.AgentID, cmd.EstimatedTime)
	if err != nil {
		return nil, err
	}
	delivery.EstimatedTime = cmd.EstimatedTime

	if err := s.deliveries.Save(ctx, delivery); err != nil {
		return nil, err
	}

	if err := s.orders.Update(ctx, o); err != nil {
		// Delivery exists but the order still shows CONFIRMED. The
		// unique orderId index makes a retried assignment surface
		// ErrDeliveryExists rather than a second delivery.
		s.logger.Error("Failed to mirror assignment onto order",
			"orderId", o.OrderID,
			"deliveryId", delivery.DeliveryID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Order assigned to agent",
		"orderId", o.OrderID,
		"deliveryId", delivery.DeliveryID,
		"agentId", cmd.AgentID,
	)

	return delivery, nil
}

// UpdateStatusCommand holds the input for a delivery status update
type UpdateStatusCommand struct {
	DeliveryID string
	NewStatus  domain.Status
	Note       string
	Location   *domain.LocationPing
}

// UpdateStatus transitions the delivery, mirrors the derived status to
// the order, and sends a best-effort customer notification on pickup
// and completion
func (s *DeliveryService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*domain.Delivery, error) {
	delivery, err := s.deliveries.GetByDeliveryID(ctx, cmd.DeliveryID)
	if err != nil {
		return nil, err
	}

	from := delivery.Status
	if err := delivery.Transition(cmd.NewStatus); err != nil {
		return nil, err
	}
	if cmd.Note != "" {
		delivery.AddNote(cmd.Note)
	}
	if cmd.Location != nil {
		delivery.Locations = append(delivery.Locations, *cmd.Location)
	}

	if err := s.deliveries.Update(ctx, delivery); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordDeliveryTransition(string(from), string(delivery.Status))
	}

	s.mirrorToOrder(ctx, delivery)
	s.notifyCustomer(ctx, delivery)

	s.logger.Info("Delivery status updated",
		"deliveryId", delivery.DeliveryID,
		"orderId", delivery.OrderID,
		"status", delivery.Status,
	)

	return delivery, nil
}

// GetDelivery fetches a delivery by ID
func (s *DeliveryService) GetDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	return s.deliveries.GetByDeliveryID(ctx, deliveryID)
}

// GetDeliveryForOrder fetches the delivery attached to an order
func (s *DeliveryService) GetDeliveryForOrder(ctx context.Context, orderID string) (*domain.Delivery, error) {
	return s.deliveries.GetByOrderID(ctx, orderID)
}

// ListByAgent lists an agent's deliveries
func (s *DeliveryService) ListByAgent(ctx context.Context, agentID string, opts domain.ListOptions) ([]*domain.Delivery, error) {
	return s.deliveries.ListByAgent(ctx, agentID, opts)
}

// TrackLocation appends a location ping to an in-flight delivery
func (s *DeliveryService) TrackLocation(ctx context.Context, deliveryID string, latitude, longitude float64) error {
	return s.deliveries.AppendLocation(ctx, deliveryID, domain.LocationPing{
		Latitude:   latitude,
		Longitude:  longitude,
		RecordedAt: time.Now().UTC(),
	})
}

// mirrorToOrder reflects the delivery transition onto the order. A
// mirror failure is logged, not propagated: the delivery transition is
// already committed and the delivery record is the source of truth.
func (s *DeliveryService) mirrorToOrder(ctx context.Context, delivery *domain.Delivery) {
	o, err := s.orders.GetByOrderID(ctx, delivery.OrderID)
	if err != nil {
		s.logger.Error("Failed to load order for status mirror",
			"orderId", delivery.OrderID,
			"error", err,
		)
		return
	}

	if err := o.MirrorDeliveryStatus(delivery.OrderStatus()); err != nil {
		s.logger.Warn("Order rejected mirrored status",
			"orderId", o.OrderID,
			"deliveryStatus", delivery.Status,
			"error", err,
		)
		return
	}

	if err := s.orders.Update(ctx, o); err != nil {
		s.logger.Error("Failed to mirror delivery status onto order",
			"orderId", o.OrderID,
			"error", err,
		)
	}
}

// notifyCustomer sends a best-effort SMS on pickup and completion.
// Failures are logged and swallowed; a delivery never fails because an
// SMS provider is down.
func (s *DeliveryService) notifyCustomer(ctx context.Context, delivery *domain.Delivery) {
	var message string
	switch delivery.Status {
	case domain.StatusPickedUp:
		message = fmt.Sprintf("Your order %s has been picked up and is on its way.", delivery.OrderID)
	case domain.StatusDelivered:
		message = fmt.Sprintf("Your order %s has been delivered. Thank you!", delivery.OrderID)
	default:
		return
	}

	if err := s.notifier.Send(ctx, delivery.CustomerPhone, message); err != nil {
		s.logger.Warn("Customer notification failed",
			"deliveryId", delivery.DeliveryID,
			"orderId", delivery.OrderID,
			"status", delivery.Status,
			"error", err,
		)
	}
}
