package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/internal/inventory/domain"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
	"github.com/commerce-platform/fulfillment/pkg/outbox"
)

// fakeTxnRunner runs the transaction body directly; the ctx it passes is
// nil because the body only forwards it to the fakes below.
type fakeTxnRunner struct{}

func (fakeTxnRunner) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	return fn(nil)
}

type fakeDebitRepo struct {
	insertFn       func(ctx context.Context, debit *domain.StockDebit) error
	markReversedFn func(ctx context.Context, orderID string) (*domain.StockDebit, error)
	getFn          func(ctx context.Context, orderID string) (*domain.StockDebit, error)
}

func (f *fakeDebitRepo) Insert(ctx context.Context, debit *domain.StockDebit) error {
	return f.insertFn(ctx, debit)
}

func (f *fakeDebitRepo) MarkReversed(ctx context.Context, orderID string) (*domain.StockDebit, error) {
	return f.markReversedFn(ctx, orderID)
}

func (f *fakeDebitRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.StockDebit, error) {
	return f.getFn(ctx, orderID)
}

type fakeProductRepo struct {
	catalog.ProductRepository
	adjustStockFn func(ctx context.Context, storeID, productID string, delta int) error
	getProductsFn func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error)
}

func (f *fakeProductRepo) AdjustStock(ctx context.Context, storeID, productID string, delta int) error {
	return f.adjustStockFn(ctx, storeID, productID, delta)
}

func (f *fakeProductRepo) GetProducts(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
	return f.getProductsFn(ctx, storeID, productIDs)
}

type fakeOutboxRepo struct {
	insertFn func(ctx context.Context, events ...*outbox.Event) error
}

func (f *fakeOutboxRepo) Insert(ctx context.Context, events ...*outbox.Event) error {
	return f.insertFn(ctx, events...)
}

func (f *fakeOutboxRepo) FindUnpublished(ctx context.Context, limit int) ([]*outbox.Event, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkPublished(ctx context.Context, eventID string) error { return nil }

func (f *fakeOutboxRepo) IncrementRetry(ctx context.Context, eventID string, lastError string) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testItems() []domain.DebitItem {
	return []domain.DebitItem{
		{ProductID: "PROD-001", Quantity: 2},
		{ProductID: "PROD-002", Quantity: 1},
	}
}

func TestReduceStockForOrder(t *testing.T) {
	t.Run("debits every line and records the ledger entry", func(t *testing.T) {
		var inserted *domain.StockDebit
		adjusted := map[string]int{}

		debits := &fakeDebitRepo{
			insertFn: func(ctx context.Context, debit *domain.StockDebit) error {
				inserted = debit
				return nil
			},
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				adjusted[productID] = delta
				return nil
			},
			getProductsFn: func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
				return nil, nil
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, &fakeOutboxRepo{}, nil, discardLogger())
		err := service.ReduceStockForOrder(context.Background(), "STORE-001", "ORD-001", testItems())
		require.NoError(t, err)

		require.NotNil(t, inserted)
		assert.Equal(t, "ORD-001", inserted.OrderID)
		assert.Equal(t, map[string]int{"PROD-001": -2, "PROD-002": -1}, adjusted)
	})

	t.Run("replayed event is a no-op", func(t *testing.T) {
		debits := &fakeDebitRepo{
			insertFn: func(ctx context.Context, debit *domain.StockDebit) error {
				return domain.ErrAlreadyDebited
			},
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				t.Fatal("stock must not be touched on replay")
				return nil
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, &fakeOutboxRepo{}, nil, discardLogger())
		err := service.ReduceStockForOrder(context.Background(), "STORE-001", "ORD-001", testItems())
		assert.NoError(t, err)
	})

	t.Run("collects every failed line before aborting", func(t *testing.T) {
		debits := &fakeDebitRepo{
			insertFn: func(ctx context.Context, debit *domain.StockDebit) error { return nil },
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				if productID == "PROD-002" {
					return nil
				}
				return catalog.ErrInsufficientStock
			},
			getProductsFn: func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
				return nil, nil
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, &fakeOutboxRepo{}, nil, discardLogger())
		err := service.ReduceStockForOrder(context.Background(), "STORE-001", "ORD-001", testItems())

		var insufficientErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &insufficientErr)
		require.Len(t, insufficientErr.Items, 1)
		assert.Equal(t, "PROD-001", insufficientErr.Items[0].ProductID)
		assert.Equal(t, 2, insufficientErr.Items[0].Requested)
	})

	t.Run("unexpected repository error propagates", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		debits := &fakeDebitRepo{
			insertFn: func(ctx context.Context, debit *domain.StockDebit) error { return nil },
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				return dbErr
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, &fakeOutboxRepo{}, nil, discardLogger())
		err := service.ReduceStockForOrder(context.Background(), "STORE-001", "ORD-001", testItems())
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("low stock after debit raises one alert", func(t *testing.T) {
		low, err := catalog.NewMoney(1250, "USD")
		require.NoError(t, err)
		product, err := catalog.NewProduct("STORE-001", "PROD-001", "Ground Coffee 500g", low, 3, 5)
		require.NoError(t, err)

		var alerts []*outbox.Event
		outboxRepo := &fakeOutboxRepo{
			insertFn: func(ctx context.Context, events ...*outbox.Event) error {
				alerts = append(alerts, events...)
				return nil
			},
		}
		debits := &fakeDebitRepo{
			insertFn: func(ctx context.Context, debit *domain.StockDebit) error { return nil },
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				return nil
			},
			getProductsFn: func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
				return []*catalog.Product{product}, nil
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, outboxRepo, nil, discardLogger())
		require.NoError(t, service.ReduceStockForOrder(context.Background(), "STORE-001", "ORD-001", testItems()))

		require.Len(t, alerts, 1)
		assert.Equal(t, "commerce.inventory.low-stock-alert", alerts[0].EventType)
	})
}

func TestRestoreStockForOrder(t *testing.T) {
	t.Run("credits back every debited quantity", func(t *testing.T) {
		debit, err := domain.NewStockDebit("ORD-001", "STORE-001", testItems())
		require.NoError(t, err)

		adjusted := map[string]int{}
		debits := &fakeDebitRepo{
			markReversedFn: func(ctx context.Context, orderID string) (*domain.StockDebit, error) {
				return debit, nil
			},
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				adjusted[productID] = delta
				return nil
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, &fakeOutboxRepo{}, nil, discardLogger())
		require.NoError(t, service.RestoreStockForOrder(context.Background(), "STORE-001", "ORD-001"))

		assert.Equal(t, map[string]int{"PROD-001": 2, "PROD-002": 1}, adjusted)
	})

	t.Run("no debit means nothing to restore", func(t *testing.T) {
		debits := &fakeDebitRepo{
			markReversedFn: func(ctx context.Context, orderID string) (*domain.StockDebit, error) {
				return nil, domain.ErrDebitNotFound
			},
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				t.Fatal("stock must not be touched without a debit")
				return nil
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, &fakeOutboxRepo{}, nil, discardLogger())
		assert.NoError(t, service.RestoreStockForOrder(context.Background(), "STORE-001", "ORD-001"))
	})

	t.Run("a failed credit does not block the rest", func(t *testing.T) {
		debit, err := domain.NewStockDebit("ORD-001", "STORE-001", testItems())
		require.NoError(t, err)

		adjusted := map[string]int{}
		debits := &fakeDebitRepo{
			markReversedFn: func(ctx context.Context, orderID string) (*domain.StockDebit, error) {
				return debit, nil
			},
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				if productID == "PROD-001" {
					return errors.New("write conflict")
				}
				adjusted[productID] = delta
				return nil
			},
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, &fakeOutboxRepo{}, nil, discardLogger())
		require.NoError(t, service.RestoreStockForOrder(context.Background(), "STORE-001", "ORD-001"))

		assert.Equal(t, map[string]int{"PROD-002": 1}, adjusted)
	})
}

func TestReportDeductionFailure(t *testing.T) {
	var stored []*outbox.Event
	outboxRepo := &fakeOutboxRepo{
		insertFn: func(ctx context.Context, events ...*outbox.Event) error {
			stored = append(stored, events...)
			return nil
		},
	}

	service := NewInventoryService(fakeTxnRunner{}, &fakeDebitRepo{}, &fakeProductRepo{}, outboxRepo, nil, discardLogger())
	err := service.ReportDeductionFailure(context.Background(), "STORE-001", "ORD-001",
		[]domain.FailedItem{{ProductID: "PROD-001", Requested: 3}}, "insufficient stock")
	require.NoError(t, err)

	require.Len(t, stored, 1)
	assert.Equal(t, "commerce.inventory.deduction-failed", stored[0].EventType)
	assert.Equal(t, "ORD-001", stored[0].OrderID)
	assert.Equal(t, "STORE-001", stored[0].StoreID)
}

func TestInventoryMetrics(t *testing.T) {
	t.Run("successful debits and low stock alerts are counted", func(t *testing.T) {
		low, err := catalog.NewMoney(1250, "USD")
		require.NoError(t, err)
		product, err := catalog.NewProduct("STORE-001", "PROD-001", "Ground Coffee 500g", low, 3, 5)
		require.NoError(t, err)

		m := metrics.New(metrics.DefaultConfig("test"))
		debits := &fakeDebitRepo{
			insertFn: func(ctx context.Context, debit *domain.StockDebit) error { return nil },
		}
		products := &fakeProductRepo{
			adjustStockFn: func(ctx context.Context, storeID, productID string, delta int) error {
				return nil
			},
			getProductsFn: func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
				return []*catalog.Product{product}, nil
			},
		}
		outboxRepo := &fakeOutboxRepo{
			insertFn: func(ctx context.Context, events ...*outbox.Event) error { return nil },
		}

		service := NewInventoryService(fakeTxnRunner{}, debits, products, outboxRepo, m, discardLogger())
		require.NoError(t, service.ReduceStockForOrder(context.Background(), "STORE-001", "ORD-001", testItems()))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.StockDeductions.WithLabelValues("test", "STORE-001")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.LowStockAlerts.WithLabelValues("test", "STORE-001")))
	})

	t.Run("reported failures are counted by reason", func(t *testing.T) {
		m := metrics.New(metrics.DefaultConfig("test"))
		outboxRepo := &fakeOutboxRepo{
			insertFn: func(ctx context.Context, events ...*outbox.Event) error { return nil },
		}

		service := NewInventoryService(fakeTxnRunner{}, &fakeDebitRepo{}, &fakeProductRepo{}, outboxRepo, m, discardLogger())
		err := service.ReportDeductionFailure(context.Background(), "STORE-001", "ORD-001",
			[]domain.FailedItem{{ProductID: "PROD-001", Requested: 3}}, "insufficient stock")
		require.NoError(t, err)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.StockDeductionFailed.WithLabelValues("test", "STORE-001", "insufficient stock")))
		assert.Equal(t, 0, testutil.CollectAndCount(m.StockDeductions))
	})
}
