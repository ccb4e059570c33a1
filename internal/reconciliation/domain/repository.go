package domain

import (
	"context"
	"time"
)

// PaymentRecordRepository persists the reconciliation ledger.
// Insert takes a session context so the record commits in the same
// transaction as the delivery's collection flag.
type PaymentRecordRepository interface {
	Insert(ctx context.Context, record *PaymentRecord) error

	GetByDeliveryID(ctx context.Context, deliveryID string) (*PaymentRecord, error)

	ListByAgent(ctx context.Context, agentID string, date time.Time) ([]*PaymentRecord, error)
}

// SummaryReader builds the agent cash summary. It reads the delivery
// collection directly; the ledger holds only completed collections.
type SummaryReader interface {
	Summarize(ctx context.Context, agentID string, date time.Time) (*CashSummary, error)
}
