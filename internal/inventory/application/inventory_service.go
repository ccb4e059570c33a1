package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/internal/inventory/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
	"github.com/commerce-platform/fulfillment/pkg/kafka"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	pkgmongo "github.com/commerce-platform/fulfillment/pkg/mongodb"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
)

// InventoryService is the stock reducer. It applies order stock debits
// all-or-nothing and compensating restores, keyed by the per-order debit
// ledger so replays and reordering of events cannot corrupt stock.
type InventoryService struct {
	client   pkgmongo.TransactionRunner
	debits   domain.StockDebitRepository
	products catalog.ProductRepository
	outbox   outbox.Repository
	factory  *events.Factory
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(
	client pkgmongo.TransactionRunner,
	debits domain.StockDebitRepository,
	products catalog.ProductRepository,
	outboxRepo outbox.Repository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *InventoryService {
	return &InventoryService{
		client:   client,
		debits:   debits,
		products: products,
		outbox:   outboxRepo,
		factory:  events.NewFactory(events.SourceInventory),
		metrics:  m,
		logger:   logger,
	}
}

// ReduceStockForOrder debits stock for every item of a placed order in
// one MongoDB transaction. Either every line is deducted or none is.
//
// The debit ledger insert rides in the same transaction: a redelivered
// event finds the ledger record and returns success without touching
// stock again. Each line is a conditional decrement guarded by
// stockQuantity >= quantity; lines that miss the guard are collected and
// the transaction is aborted with an InsufficientStockError naming them.
func (s *InventoryService) ReduceStockForOrder(ctx context.Context, storeID, orderID string, items []domain.DebitItem) error {
	debit, err := domain.NewStockDebit(orderID, storeID, items)
	if err != nil {
		return err
	}

	txErr := s.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.debits.Insert(sessCtx, debit); err != nil {
			return err
		}

		var failed []domain.FailedItem
		for _, item := range debit.Items {
			err := s.products.AdjustStock(sessCtx, storeID, item.ProductID, -item.Quantity)
			switch {
			case err == nil:
			case errors.Is(err, catalog.ErrInsufficientStock),
				errors.Is(err, catalog.ErrProductNotFound):
				failed = append(failed, domain.FailedItem{
					ProductID: item.ProductID,
					Requested: item.Quantity,
				})
			default:
				return err
			}
		}

		if len(failed) > 0 {
			return &domain.InsufficientStockError{OrderID: orderID, Items: failed}
		}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, domain.ErrAlreadyDebited) {
			s.logger.Info("Stock already debited, skipping replay",
				"orderId", orderID,
				"storeId", storeID,
			)
			return nil
		}
		return txErr
	}

	if s.metrics != nil {
		s.metrics.RecordStockDeduction(storeID)
	}
	s.logger.Info("Stock debited",
		"orderId", orderID,
		"storeId", storeID,
		"items", len(debit.Items),
	)

	s.raiseLowStockAlert(ctx, storeID, debit.Items)
	return nil
}

// RestoreStockForOrder compensates a cancelled order. The restore is
// anchored on the debit ledger: the record is flipped debited->reversed
// in one conditional update, then each quantity is credited back. If no
// debited record exists the restore is a no-op; in particular a
// cancellation that arrives before the placement event restores nothing,
// and the later placement debit is compensated when its record appears.
//
// Per-item credits are individual updates; a failed credit is logged and
// skipped rather than blocking the remaining items.
func (s *InventoryService) RestoreStockForOrder(ctx context.Context, storeID, orderID string) error {
	debit, err := s.debits.MarkReversed(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrDebitNotFound) {
			s.logger.Info("No debit to restore, skipping",
				"orderId", orderID,
				"storeId", storeID,
			)
			return nil
		}
		return err
	}

	restored := 0
	for _, item := range debit.Items {
		if err := s.products.AdjustStock(ctx, storeID, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to restore stock for item",
				"orderId", orderID,
				"productId", item.ProductID,
				"quantity", item.Quantity,
				"error", err,
			)
			continue
		}
		restored++
	}

	s.logger.Info("Stock restored",
		"orderId", orderID,
		"storeId", storeID,
		"restored", restored,
		"items", len(debit.Items),
	)

	return nil
}

// ReportDeductionFailure publishes a StockDeductionFailed event. The
// event is the report; remediation (refund, manual restock) is
// out-of-band.
func (s *InventoryService) ReportDeductionFailure(ctx context.Context, storeID, orderID string, failed []domain.FailedItem, reason string) error {
	items := make([]events.FailedDeduction, len(failed))
	for i, item := range failed {
		items[i] = events.FailedDeduction{ProductID: item.ProductID, Requested: item.Requested}
	}

	env, err := s.factory.WrapWithCorrelation(orderID, &events.StockDeductionFailed{
		OrderID:  orderID,
		StoreID:  storeID,
		Items:    items,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	}, "", storeID, orderID)
	if err != nil {
		return err
	}

	if err := s.outbox.Insert(ctx, outbox.FromEnvelope(env, kafka.Topics.InventoryEvents)); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordStockDeductionFailure(storeID, reason)
	}
	return nil
}

// raiseLowStockAlert emits one LowStockAlert listing every debited
// product now at or below its threshold. Best effort: a failure here
// never fails the debit that already committed.
func (s *InventoryService) raiseLowStockAlert(ctx context.Context, storeID string, items []domain.DebitItem) {
	productIDs := make([]string, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := s.products.GetProducts(ctx, storeID, productIDs)
	if err != nil {
		s.logger.Error("Failed to read products for low stock check",
			"storeId", storeID,
			"error", err,
		)
		return
	}

	var low []events.LowStockProduct
	for _, p := range products {
		if p.IsLowStock() {
			low = append(low, events.LowStockProduct{
				ProductID:         p.ProductID,
				Name:              p.Name,
				StockQuantity:     p.StockQuantity,
				LowStockThreshold: p.LowStockThreshold,
			})
		}
	}
	if len(low) == 0 {
		return
	}

	env, err := s.factory.WrapWithCorrelation(storeID, &events.LowStockAlert{
		StoreID:   storeID,
		Products:  low,
		AlertedAt: time.Now().UTC(),
	}, "", storeID, "")
	if err != nil {
		s.logger.Error("Failed to build low stock alert", "storeId", storeID, "error", err)
		return
	}

	if err := s.outbox.Insert(ctx, outbox.FromEnvelope(env, kafka.Topics.InventoryEvents)); err != nil {
		s.logger.Error("Failed to store low stock alert", "storeId", storeID, "error", err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordLowStockAlert(storeID)
	}
	s.logger.Warn("Low stock alert raised", "storeId", storeID, "products", len(low))
}
