package application

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	delivery "github.com/commerce-platform/fulfillment/internal/delivery/domain"
	"github.com/commerce-platform/fulfillment/internal/reconciliation/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
	"github.com/commerce-platform/fulfillment/pkg/kafka"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
)

// ReconciliationService records COD collections and reports agent cash
// positions
type ReconciliationService struct {
	client     pkgmongo.TransactionRunner
	records    domain.PaymentRecordRepository
	deliveries delivery.DeliveryRepository
	summaries  domain.SummaryReader
	outbox     outbox.Repository
	factory    *events.Factory
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewReconciliationService creates a reconciliation service
func NewReconciliationService(
	client pkgmongo.TransactionRunner,
	records domain.PaymentRecordRepository,
	deliveries delivery.DeliveryRepository,
	summaries domain.SummaryReader,
	outboxRepo outbox.Repository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		client:     client,
		records:    records,
		deliveries: deliveries,
		summaries:  summaries,
		outbox:     outboxRepo,
		factory:    events.NewFactory(events.SourceReconciliation),
		metrics:    m,
		logger:     logger,
	}
}

// RecordCashCollectionCommand holds the input for a COD collection
type RecordCashCollectionCommand struct {
	DeliveryID      string
	AmountCollected int64
	Notes           string
}

// RecordCashCollection writes a ledger entry for a COD collection. The
// delivery's collected flag, the payment record, and the CashCollected
// event commit in one transaction, so the ledger can never show a
// collection the delivery does not, or vice versa. The conditional
// collected-flag update plus the unique paymentRef index make a
// concurrent double submission lose cleanly with ErrAlreadyCollected.
func (s *ReconciliationService) RecordCashCollection(ctx context.Context, cmd RecordCashCollectionCommand) (*domain.PaymentRecord, error) {
	d, err := s.deliveries.GetByDeliveryID(ctx, cmd.DeliveryID)
	if err != nil {
		return nil, err
	}
	if !d.IsCOD {
		return nil, delivery.ErrNotCOD
	}
	if d.CODCollected {
		return nil, delivery.ErrAlreadyCollected
	}

	collected, err := catalog.NewMoney(cmd.AmountCollected, d.TotalAmount.Currency())
	if err != nil {
		return nil, err
	}

	record, err := domain.NewPaymentRecord(
		d.DeliveryID, d.OrderID, d.StoreID, d.AgentID,
		d.TotalAmount, collected, cmd.Notes,
	)
	if err != nil {
		return nil, err
	}

	err = s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.deliveries.CollectCash(sessCtx, d.DeliveryID, record.CollectedAt); err != nil {
			return err
		}
		if err := s.records.Insert(sessCtx, record); err != nil {
			return err
		}
		return s.insertCollectedEvent(sessCtx, record)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCashCollection(string(record.Status), record.Variance)
	}
	s.logger.Info("Cash collection recorded",
		"deliveryId", record.DeliveryID,
		"orderId", record.OrderID,
		"agentId", record.AgentID,
		"expected", record.ExpectedAmount.Amount(),
		"collected", record.CollectedAmount.Amount(),
		"variance", record.Variance,
		"status", record.Status,
	)

	return record, nil
}

// GetCollection fetches the ledger entry for a delivery
func (s *ReconciliationService) GetCollection(ctx context.Context, deliveryID string) (*domain.PaymentRecord, error) {
	return s.records.GetByDeliveryID(ctx, deliveryID)
}

// ListCollections lists an agent's ledger entries for one day
func (s *ReconciliationService) ListCollections(ctx context.Context, agentID string, date time.Time) ([]*domain.PaymentRecord, error) {
	return s.records.ListByAgent(ctx, agentID, date)
}

// GetCashSummary builds the agent's cash position for one day
func (s *ReconciliationService) GetCashSummary(ctx context.Context, agentID string, date time.Time) (*domain.CashSummary, error) {
	return s.summaries.Summarize(ctx, agentID, date)
}

func (s *ReconciliationService) insertCollectedEvent(sessCtx mongo.SessionContext, record *domain.PaymentRecord) error {
	evt := &events.CashCollected{
		DeliveryID:      record.DeliveryID,
		OrderID:         record.OrderID,
		AgentID:         record.AgentID,
		ExpectedAmount:  record.ExpectedAmount.Amount(),
		CollectedAmount: record.CollectedAmount.Amount(),
		Variance:        record.Variance,
		Status:          string(record.Status),
		CollectedAt:     record.CollectedAt,
	}

	env, err := s.factory.WrapWithCorrelation(record.DeliveryID, evt, "", record.StoreID, record.OrderID)
	if err != nil {
		return err
	}

	return s.outbox.Insert(sessCtx, outbox.FromEnvelope(env, kafka.Topics.ReconciliationEvents))
}
