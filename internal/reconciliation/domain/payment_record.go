package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
)

// Errors for the reconciliation ledger
var (
	ErrRecordNotFound = errors.New("payment record not found")
	ErrRecordExists   = errors.New("payment record already exists for this delivery")
	ErrInvalidAmount  = errors.New("collected amount must not be negative")
)

// VarianceStatus classifies a collection against the expected amount
type VarianceStatus string

const (
	VarianceMatched       VarianceStatus = "MATCHED"
	VarianceOverCollected VarianceStatus = "OVER_COLLECTED"
	VarianceShort         VarianceStatus = "SHORT"
)

// ClassifyVariance maps a signed variance in minor units to its status
func ClassifyVariance(variance int64) VarianceStatus {
	switch {
	case variance > 0:
		return VarianceOverCollected
	case variance < 0:
		return VarianceShort
	default:
		return VarianceMatched
	}
}

// PaymentRecord is one COD collection entry in the reconciliation ledger.
// PaymentRef is derived from the delivery, so the unique index on it makes
// a double collection a duplicate insert rather than a second ledger row.
type PaymentRecord struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PaymentRef      string             `bson:"paymentRef" json:"paymentRef"`
	DeliveryID      string             `bson:"deliveryId" json:"deliveryId"`
	OrderID         string             `bson:"orderId" json:"orderId"`
	StoreID         string             `bson:"storeId" json:"storeId"`
	AgentID         string             `bson:"agentId" json:"agentId"`
	ExpectedAmount  catalog.Money      `bson:"expectedAmount" json:"expectedAmount"`
	CollectedAmount catalog.Money      `bson:"collectedAmount" json:"collectedAmount"`
	Variance        int64              `bson:"variance" json:"variance"`
	Status          VarianceStatus     `bson:"status" json:"status"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CollectedAt     time.Time          `bson:"collectedAt" json:"collectedAt"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
}

// PaymentRef derives the ledger reference for a delivery's COD collection
func PaymentRef(deliveryID string) string {
	return "COD-" + deliveryID
}

// NewPaymentRecord builds a ledger entry for a collection. The variance
// is collected minus expected; its sign drives the status.
func NewPaymentRecord(deliveryID, orderID, storeID, agentID string, expected, collected catalog.Money, notes string) (*PaymentRecord, error) {
	if collected.Amount() < 0 {
		return nil, ErrInvalidAmount
	}

	variance := collected.Amount() - expected.Amount()
	now := time.Now().UTC()

	return &PaymentRecord{
		ID:              primitive.NewObjectID(),
		PaymentRef:      PaymentRef(deliveryID),
		DeliveryID:      deliveryID,
		OrderID:         orderID,
		StoreID:         storeID,
		AgentID:         agentID,
		ExpectedAmount:  expected,
		CollectedAmount: collected,
		Variance:        variance,
		Status:          ClassifyVariance(variance),
		Notes:           notes,
		CollectedAt:     now,
		CreatedAt:       now,
	}, nil
}
