package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	order "github.com/commerce-platform/fulfillment/internal/order/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
)

// Errors for the Delivery aggregate
var (
	ErrDeliveryNotFound = errors.New("delivery not found")
	ErrDeliveryExists   = errors.New("order already has a delivery")
	ErrNotCOD           = errors.New("delivery is not cash on delivery")
	ErrAlreadyCollected = errors.New("cash already collected for this delivery")
	ErrEmptyAgentID     = errors.New("agent ID is required")
)

// Status represents delivery status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPickedUp  Status = "PICKED_UP"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// allowedTransitions is the full state machine. DELIVERED is terminal;
// FAILED returns to PENDING for a retry attempt.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusPickedUp},
	StatusPickedUp:  {StatusInTransit},
	StatusInTransit: {StatusDelivered, StatusFailed},
	StatusDelivered: {},
	StatusFailed:    {StatusPending},
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal next statuses from a status
func AllowedTransitions(from Status) []Status {
	return allowedTransitions[from]
}

// InvalidTransitionError reports an illegal transition together with the
// transitions that would have been allowed
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

// Error implements the error interface
func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("invalid transition %s -> %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition %s -> %s: allowed from %s: %s",
		e.From, e.To, e.From, strings.Join(allowed, ", "))
}

// Note is an append-only free-text annotation on a delivery
type Note struct {
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// LocationPing is one tracked position of the delivery agent
type LocationPing struct {
	Latitude   float64   `bson:"latitude" json:"latitude"`
	Longitude  float64   `bson:"longitude" json:"longitude"`
	RecordedAt time.Time `bson:"recordedAt" json:"recordedAt"`
}

// Delivery is the aggregate root for the delivery bounded context. The
// customer and amount fields are a denormalized snapshot taken at
// assignment so the agent-facing reads never join back to the order.
type Delivery struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DeliveryID    string             `bson:"deliveryId" json:"deliveryId"`
	OrderID       string             `bson:"orderId" json:"orderId"`
	StoreID       string             `bson:"storeId" json:"storeId"`
	AgentID       string             `bson:"agentId" json:"agentId"`
	Status        Status             `bson:"status" json:"status"`
	CustomerName  string             `bson:"customerName" json:"customerName"`
	CustomerPhone string             `bson:"customerPhone" json:"customerPhone"`
	Address       order.Address      `bson:"address" json:"address"`
	TotalAmount   catalog.Money      `bson:"totalAmount" json:"totalAmount"`
	IsCOD         bool               `bson:"isCod" json:"isCod"`
	CODCollected  bool               `bson:"codCollected" json:"codCollected"`
	CollectedAt   *time.Time         `bson:"collectedAt,omitempty" json:"collectedAt,omitempty"`
	EstimatedTime *time.Time         `bson:"estimatedTime,omitempty" json:"estimatedTime,omitempty"`
	Notes         []Note             `bson:"notes" json:"notes"`
	Locations     []LocationPing     `bson:"locations,omitempty" json:"locations,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`

	// Domain events - transient, not persisted with the aggregate
	domainEvents []events.DomainEvent `bson:"-" json:"-"`
}

// NewDelivery creates a delivery in PENDING for an assigned order
func NewDelivery(deliveryID string, o *order.Order, agentID string, estimatedTime *time.Time) (*Delivery, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}

	now := time.Now().UTC()
	return &Delivery{
		ID:            primitive.NewObjectID(),
		DeliveryID:    deliveryID,
		OrderID:       o.OrderID,
		StoreID:       o.StoreID,
		AgentID:       agentID,
		Status:        StatusPending,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		Address:       o.DeliveryAddress,
		TotalAmount:   o.TotalAmount,
		IsCOD:         o.IsCOD(),
		Notes:         make([]Note, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
		domainEvents:  make([]events.DomainEvent, 0),
	}, nil
}

// Transition moves the delivery to a new status, rejecting anything not
// in the transition table, and emits DeliveryStatusChanged
func (d *Delivery) Transition(to Status) error {
	if !CanTransition(d.Status, to) {
		return &InvalidTransitionError{
			From:    d.Status,
			To:      to,
			Allowed: AllowedTransitions(d.Status),
		}
	}

	from := d.Status
	d.Status = to
	d.UpdatedAt = time.Now().UTC()

	d.addDomainEvent(&events.DeliveryStatusChanged{
		DeliveryID: d.DeliveryID,
		OrderID:    d.OrderID,
		AgentID:    d.AgentID,
		OldStatus:  string(from),
		NewStatus:  string(to),
		ChangedAt:  d.UpdatedAt,
	})

	return nil
}

// AddNote appends a note. Notes are append-only; nothing removes them.
func (d *Delivery) AddNote(text string) {
	if text == "" {
		return
	}
	d.Notes = append(d.Notes, Note{Text: text, CreatedAt: time.Now().UTC()})
	d.UpdatedAt = time.Now().UTC()
}

// OrderStatus derives the order-side status mirrored from this delivery
func (d *Delivery) OrderStatus() order.Status {
	switch d.Status {
	case StatusDelivered:
		return order.StatusDelivered
	case StatusFailed:
		return order.StatusDeliveryFailed
	default:
		return order.StatusOutForDelivery
	}
}

// DomainEvents returns the uncommitted domain events
func (d *Delivery) DomainEvents() []events.DomainEvent {
	return d.domainEvents
}

// ClearDomainEvents clears the uncommitted events after persistence
func (d *Delivery) ClearDomainEvents() {
	d.domainEvents = make([]events.DomainEvent, 0)
}

func (d *Delivery) addDomainEvent(event events.DomainEvent) {
	d.domainEvents = append(d.domainEvents, event)
}
