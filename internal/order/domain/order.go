package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
)

// Errors for the Order aggregate
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrNoItems            = errors.New("order must have at least one item")
	ErrInvalidQuantity    = errors.New("item quantity must be positive")
	ErrInvalidStatus      = errors.New("invalid order status transition")
	ErrOrderNotPayable    = errors.New("order is not awaiting payment")
	ErrOrderDelivered     = errors.New("order has already been delivered")
	ErrOrderCancelled     = errors.New("order has been cancelled")
	ErrInvalidPayment     = errors.New("invalid payment method")
	ErrProductUnavailable = errors.New("product is unavailable")
)

// Status represents order status
type Status string

const (
	StatusPendingPayment     Status = "PENDING_PAYMENT"
	StatusConfirmed          Status = "CONFIRMED"
	StatusAssignedToDelivery Status = "ASSIGNED_TO_DELIVERY"
	StatusOutForDelivery     Status = "OUT_FOR_DELIVERY"
	StatusDelivered          Status = "DELIVERED"
	StatusDeliveryFailed     Status = "DELIVERY_FAILED"
	StatusCancelled          Status = "CANCELLED"
)

// PaymentMethod represents how the order is paid
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

// IsValid checks if the payment method is valid
func (p PaymentMethod) IsValid() bool {
	return p == PaymentCOD || p == PaymentOnline
}

// OrderItem is an immutable snapshot of a catalog product at order time.
// Later price or name changes in the catalog never affect it.
type OrderItem struct {
	ProductID string        `bson:"productId" json:"productId"`
	Name      string        `bson:"name" json:"name"`
	Quantity  int           `bson:"quantity" json:"quantity"`
	UnitPrice catalog.Money `bson:"unitPrice" json:"unitPrice"`
	LineTotal catalog.Money `bson:"lineTotal" json:"lineTotal"`
}

// Address is the delivery address snapshot
type Address struct {
	Street  string `bson:"street" json:"street"`
	City    string `bson:"city" json:"city"`
	ZipCode string `bson:"zipCode,omitempty" json:"zipCode,omitempty"`
	Notes   string `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Order is the aggregate root for the order bounded context
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID         string             `bson:"orderId" json:"orderId"`
	StoreID         string             `bson:"storeId" json:"storeId"`
	CustomerName    string             `bson:"customerName" json:"customerName"`
	CustomerPhone   string             `bson:"customerPhone" json:"customerPhone"`
	DeliveryAddress Address            `bson:"deliveryAddress" json:"deliveryAddress"`
	Items           []OrderItem        `bson:"items" json:"items"`
	Subtotal        catalog.Money      `bson:"subtotal" json:"subtotal"`
	DeliveryFee     catalog.Money      `bson:"deliveryFee" json:"deliveryFee"`
	TotalAmount     catalog.Money      `bson:"totalAmount" json:"totalAmount"`
	PaymentMethod   PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	PaymentRef      string             `bson:"paymentRef,omitempty" json:"paymentRef,omitempty"`
	Status          Status             `bson:"status" json:"status"`
	AgentID         string             `bson:"agentId,omitempty" json:"agentId,omitempty"`
	CancelReason    string             `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Domain events - transient, not persisted with the aggregate
	domainEvents []events.DomainEvent `bson:"-" json:"-"`
}

// NewOrder creates a new Order aggregate in PENDING_PAYMENT status.
// Items must already be validated, priced snapshots; totals are derived
// here so subtotal + deliveryFee = totalAmount always holds.
func NewOrder(orderID, storeID, customerName, customerPhone string, address Address, items []OrderItem, deliveryFee catalog.Money, paymentMethod PaymentMethod) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if !paymentMethod.IsValid() {
		return nil, ErrInvalidPayment
	}

	subtotal := catalog.ZeroMoney(deliveryFee.Currency())
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		var err error
		subtotal, err = subtotal.Add(item.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	total, err := subtotal.Add(deliveryFee)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Order{
		ID:              primitive.NewObjectID(),
		OrderID:         orderID,
		StoreID:         storeID,
		CustomerName:    customerName,
		CustomerPhone:   customerPhone,
		DeliveryAddress: address,
		Items:           items,
		Subtotal:        subtotal,
		DeliveryFee:     deliveryFee,
		TotalAmount:     total,
		PaymentMethod:   paymentMethod,
		Status:          StatusPendingPayment,
		CreatedAt:       now,
		UpdatedAt:       now,
		domainEvents:    make([]events.DomainEvent, 0),
	}, nil
}

// ConfirmPayment transitions PENDING_PAYMENT -> CONFIRMED and emits
// OrderPlaced for the stock reducer. Idempotent: confirming an already
// confirmed order with the same reference is a no-op.
func (o *Order) ConfirmPayment(paymentRef string) error {
	if o.Status == StatusConfirmed && o.PaymentRef == paymentRef {
		return nil
	}
	if o.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	if o.Status != StatusPendingPayment {
		return ErrOrderNotPayable
	}

	o.Status = StatusConfirmed
	o.PaymentRef = paymentRef
	o.UpdatedAt = time.Now().UTC()

	o.addDomainEvent(&events.OrderPlaced{
		OrderID:     o.OrderID,
		StoreID:     o.StoreID,
		Items:       o.eventItems(),
		TotalAmount: o.TotalAmount.Amount(),
		Currency:    o.TotalAmount.Currency(),
		PlacedAt:    o.UpdatedAt,
	})

	return nil
}

// Cancel cancels the order. Delivered orders cannot be cancelled.
// Emits OrderCancelled so the stock reducer can restore any deducted
// stock.
func (o *Order) Cancel(reason string) error {
	if o.Status == StatusDelivered {
		return ErrOrderDelivered
	}
	if o.Status == StatusCancelled {
		return nil
	}

	o.Status = StatusCancelled
	o.CancelReason = reason
	o.UpdatedAt = time.Now().UTC()

	o.addDomainEvent(&events.OrderCancelled{
		OrderID:     o.OrderID,
		StoreID:     o.StoreID,
		Items:       o.eventItems(),
		Reason:      reason,
		CancelledAt: o.UpdatedAt,
	})

	return nil
}

// AssignAgent attaches a delivery agent to a confirmed order
func (o *Order) AssignAgent(agentID string) error {
	if o.Status == StatusCancelled {
		return ErrOrderCancelled
	}
	if o.Status != StatusConfirmed {
		return ErrInvalidStatus
	}

	o.AgentID = agentID
	o.Status = StatusAssignedToDelivery
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// MirrorDeliveryStatus reflects a delivery-side transition onto the order
func (o *Order) MirrorDeliveryStatus(status Status) error {
	switch status {
	case StatusOutForDelivery, StatusDelivered, StatusDeliveryFailed:
	default:
		return ErrInvalidStatus
	}
	if o.Status == StatusCancelled {
		return ErrOrderCancelled
	}

	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// IsCOD returns true for cash-on-delivery orders
func (o *Order) IsCOD() bool {
	return o.PaymentMethod == PaymentCOD
}

// DomainEvents returns the uncommitted domain events
func (o *Order) DomainEvents() []events.DomainEvent {
	return o.domainEvents
}

// ClearDomainEvents clears the uncommitted events after persistence
func (o *Order) ClearDomainEvents() {
	o.domainEvents = make([]events.DomainEvent, 0)
}

func (o *Order) addDomainEvent(event events.DomainEvent) {
	o.domainEvents = append(o.domainEvents, event)
}

func (o *Order) eventItems() []events.OrderLine {
	lines := make([]events.OrderLine, len(o.Items))
	for i, item := range o.Items {
		lines[i] = events.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}
