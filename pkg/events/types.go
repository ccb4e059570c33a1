package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type constants for the fulfillment domain.
// The set is closed: Decode below must handle every constant, so adding an
// event type is a compile-visible change rather than a stringly-typed one.
const (
	TypeOrderPlaced           = "commerce.order.placed"
	TypeOrderCancelled        = "commerce.order.cancelled"
	TypeLowStockAlert         = "commerce.inventory.low-stock-alert"
	TypeStockDeductionFailed  = "commerce.inventory.deduction-failed"
	TypeDeliveryStatusChanged = "commerce.delivery.status-changed"
	TypeCashCollected         = "commerce.reconciliation.cash-collected"
)

// Source constants for event sources
const (
	SourceOrders         = "/fulfillment/order-api"
	SourceInventory      = "/fulfillment/inventory-worker"
	SourceDelivery       = "/fulfillment/delivery-api"
	SourceReconciliation = "/fulfillment/reconciliation"
)

// Envelope is the wire format for all domain events
type Envelope struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data"`

	// Extensions carried as Kafka headers for routing and log correlation
	CorrelationID string `json:"correlationid,omitempty"`
	StoreID       string `json:"storeid,omitempty"`
	OrderID       string `json:"orderid,omitempty"`
}

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// OrderLine identifies a product and quantity within an order event
type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderPlaced is published when a paid order is ready for stock deduction
type OrderPlaced struct {
	OrderID     string      `json:"orderId"`
	StoreID     string      `json:"storeId"`
	Items       []OrderLine `json:"items"`
	TotalAmount int64       `json:"totalAmount"`
	Currency    string      `json:"currency"`
	PlacedAt    time.Time   `json:"placedAt"`
}

func (e *OrderPlaced) EventType() string     { return TypeOrderPlaced }
func (e *OrderPlaced) OccurredAt() time.Time { return e.PlacedAt }

// OrderCancelled is published when an order is cancelled
type OrderCancelled struct {
	OrderID     string      `json:"orderId"`
	StoreID     string      `json:"storeId"`
	Items       []OrderLine `json:"items"`
	Reason      string      `json:"reason,omitempty"`
	CancelledAt time.Time   `json:"cancelledAt"`
}

func (e *OrderCancelled) EventType() string     { return TypeOrderCancelled }
func (e *OrderCancelled) OccurredAt() time.Time { return e.CancelledAt }

// LowStockProduct describes one product at or below its threshold
type LowStockProduct struct {
	ProductID         string `json:"productId"`
	Name              string `json:"name"`
	StockQuantity     int    `json:"stockQuantity"`
	LowStockThreshold int    `json:"lowStockThreshold"`
}

// LowStockAlert is published after a debit leaves products at or below threshold
type LowStockAlert struct {
	StoreID   string            `json:"storeId"`
	Products  []LowStockProduct `json:"products"`
	AlertedAt time.Time         `json:"alertedAt"`
}

func (e *LowStockAlert) EventType() string     { return TypeLowStockAlert }
func (e *LowStockAlert) OccurredAt() time.Time { return e.AlertedAt }

// FailedDeduction describes a line item that failed its stock condition
type FailedDeduction struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
}

// StockDeductionFailed is published when an order's stock debit is rejected.
// Remediation is out-of-band: the event is the report, not a retry trigger.
type StockDeductionFailed struct {
	OrderID  string            `json:"orderId"`
	StoreID  string            `json:"storeId"`
	Items    []FailedDeduction `json:"items"`
	Reason   string            `json:"reason"`
	FailedAt time.Time         `json:"failedAt"`
}

func (e *StockDeductionFailed) EventType() string     { return TypeStockDeductionFailed }
func (e *StockDeductionFailed) OccurredAt() time.Time { return e.FailedAt }

// DeliveryStatusChanged is published on every delivery transition
type DeliveryStatusChanged struct {
	DeliveryID string    `json:"deliveryId"`
	OrderID    string    `json:"orderId"`
	AgentID    string    `json:"agentId"`
	OldStatus  string    `json:"oldStatus"`
	NewStatus  string    `json:"newStatus"`
	ChangedAt  time.Time `json:"changedAt"`
}

func (e *DeliveryStatusChanged) EventType() string     { return TypeDeliveryStatusChanged }
func (e *DeliveryStatusChanged) OccurredAt() time.Time { return e.ChangedAt }

// CashCollected is published when a COD collection is recorded
type CashCollected struct {
	DeliveryID      string    `json:"deliveryId"`
	OrderID         string    `json:"orderId"`
	AgentID         string    `json:"agentId"`
	ExpectedAmount  int64     `json:"expectedAmount"`
	CollectedAmount int64     `json:"collectedAmount"`
	Variance        int64     `json:"variance"`
	Status          string    `json:"status"`
	CollectedAt     time.Time `json:"collectedAt"`
}

func (e *CashCollected) EventType() string     { return TypeCashCollected }
func (e *CashCollected) OccurredAt() time.Time { return e.CollectedAt }

// Decode unmarshals an envelope's payload into its concrete event type.
// Unknown types are an error so consumers cannot silently skip a new event.
func Decode(env *Envelope) (DomainEvent, error) {
	var event DomainEvent

	switch env.Type {
	case TypeOrderPlaced:
		event = &OrderPlaced{}
	case TypeOrderCancelled:
		event = &OrderCancelled{}
	case TypeLowStockAlert:
		event = &LowStockAlert{}
	case TypeStockDeductionFailed:
		event = &StockDeductionFailed{}
	case TypeDeliveryStatusChanged:
		event = &DeliveryStatusChanged{}
	case TypeCashCollected:
		event = &CashCollected{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	if err := json.Unmarshal(env.Data, event); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}

	return event, nil
}
