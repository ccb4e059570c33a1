package application

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/internal/order/domain"
	"github.com/commerce-platform/fulfillment/internal/payment"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

type fakeOrderRepo struct {
	saveFn   func(ctx context.Context, order *domain.Order) error
	updateFn func(ctx context.Context, order *domain.Order) error
	getFn    func(ctx context.Context, orderID string) (*domain.Order, error)
	listFn   func(ctx context.Context, storeID string, opts domain.ListOptions) ([]*domain.Order, error)
}

func (f *fakeOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	return f.saveFn(ctx, order)
}

func (f *fakeOrderRepo) Update(ctx context.Context, order *domain.Order) error {
	return f.updateFn(ctx, order)
}

func (f *fakeOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return f.getFn(ctx, orderID)
}

func (f *fakeOrderRepo) ListByStore(ctx context.Context, storeID string, opts domain.ListOptions) ([]*domain.Order, error) {
	return f.listFn(ctx, storeID, opts)
}

type fakeProductRepo struct {
	catalog.ProductRepository
	getProductsFn func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error)
}

func (f *fakeProductRepo) GetProducts(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
	return f.getProductsFn(ctx, storeID, productIDs)
}

type fakeGateway struct {
	createFn func(ctx context.Context, orderID string, amount int64, currency string) (string, error)
}

func (f *fakeGateway) CreatePaymentReference(ctx context.Context, orderID string, amount int64, currency string) (string, error) {
	return f.createFn(ctx, orderID, amount, currency)
}

func testProduct(t *testing.T, productID string, priceCents int64, stock int) *catalog.Product {
	t.Helper()
	price, err := catalog.NewMoney(priceCents, "USD")
	require.NoError(t, err)
	product, err := catalog.NewProduct("STORE-001", productID, "Product "+productID, price, stock, 5)
	require.NoError(t, err)
	return product
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func validCommand() CreateOrderCommand {
	return CreateOrderCommand{
		StoreID:       "STORE-001",
		CustomerName:  "Dana Reyes",
		CustomerPhone: "+15550001111",
		Street:        "42 Harbor Road",
		City:          "Portland",
		Items: []CartItem{
			{ProductID: "PROD-001", Quantity: 2},
			{ProductID: "PROD-002", Quantity: 1},
		},
		DeliveryFee:   500,
		Currency:      "USD",
		PaymentMethod: domain.PaymentCOD,
	}
}

func TestCreateOrder(t *testing.T) {
	products := &fakeProductRepo{
		getProductsFn: func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
			return []*catalog.Product{
				testProduct(t, "PROD-001", 1250, 40),
				testProduct(t, "PROD-002", 399, 10),
			}, nil
		},
	}

	t.Run("snapshots prices and saves pending order", func(t *testing.T) {
		var saved *domain.Order
		orders := &fakeOrderRepo{
			saveFn: func(ctx context.Context, order *domain.Order) error {
				saved = order
				return nil
			},
		}

		service := NewOrderService(orders, products, nil, nil, nil, discardLogger())
		result, err := service.CreateOrder(context.Background(), validCommand())
		require.NoError(t, err)

		assert.Equal(t, int64(2*1250+399+500), result.TotalAmount)
		assert.Equal(t, string(domain.StatusPendingPayment), result.Status)
		assert.Empty(t, result.PaymentRef, "COD orders have no provider reference")

		require.NotNil(t, saved)
		require.Len(t, saved.Items, 2)
		assert.Equal(t, int64(1250), saved.Items[0].UnitPrice.Amount())
		assert.Equal(t, int64(2500), saved.Items[0].LineTotal.Amount())
	})

	t.Run("unknown product fails the whole order", func(t *testing.T) {
		orders := &fakeOrderRepo{
			saveFn: func(ctx context.Context, order *domain.Order) error {
				t.Fatal("order must not be saved")
				return nil
			},
		}
		service := NewOrderService(orders, products, nil, nil, nil, discardLogger())

		cmd := validCommand()
		cmd.Items = append(cmd.Items, CartItem{ProductID: "PROD-MISSING", Quantity: 1})

		_, err := service.CreateOrder(context.Background(), cmd)
		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	})

	t.Run("inactive product fails the whole order", func(t *testing.T) {
		inactive := testProduct(t, "PROD-001", 1250, 40)
		inactive.Deactivate()
		products := &fakeProductRepo{
			getProductsFn: func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
				return []*catalog.Product{inactive, testProduct(t, "PROD-002", 399, 10)}, nil
			},
		}
		service := NewOrderService(&fakeOrderRepo{}, products, nil, nil, nil, discardLogger())

		_, err := service.CreateOrder(context.Background(), validCommand())
		assert.ErrorIs(t, err, catalog.ErrProductInactive)
	})

	t.Run("advisory stock check rejects oversized lines", func(t *testing.T) {
		service := NewOrderService(&fakeOrderRepo{}, products, nil, nil, nil, discardLogger())

		cmd := validCommand()
		cmd.Items[0].Quantity = 41

		_, err := service.CreateOrder(context.Background(), cmd)
		assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	})

	t.Run("empty cart and bad quantities are rejected", func(t *testing.T) {
		service := NewOrderService(&fakeOrderRepo{}, products, nil, nil, nil, discardLogger())

		cmd := validCommand()
		cmd.Items = nil
		_, err := service.CreateOrder(context.Background(), cmd)
		assert.ErrorIs(t, err, domain.ErrNoItems)

		cmd = validCommand()
		cmd.Items[0].Quantity = 0
		_, err = service.CreateOrder(context.Background(), cmd)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("online order gets a payment reference", func(t *testing.T) {
		orders := &fakeOrderRepo{
			saveFn: func(ctx context.Context, order *domain.Order) error { return nil },
		}
		gateway := &fakeGateway{
			createFn: func(ctx context.Context, orderID string, amount int64, currency string) (string, error) {
				assert.Equal(t, int64(3399), amount)
				assert.Equal(t, "USD", currency)
				return "PAY-xyz789", nil
			},
		}
		service := NewOrderService(orders, products, gateway, nil, nil, discardLogger())

		cmd := validCommand()
		cmd.PaymentMethod = domain.PaymentOnline

		result, err := service.CreateOrder(context.Background(), cmd)
		require.NoError(t, err)
		assert.Equal(t, "PAY-xyz789", result.PaymentRef)
	})
}

func TestConfirmPayment(t *testing.T) {
	verifier := payment.NewHMACVerifier("test-secret")
	body := []byte(`{"orderId":"ORD-001","paymentRef":"PAY-xyz789"}`)

	pendingOrder := func(t *testing.T) *domain.Order {
		fee, err := catalog.NewMoney(500, "USD")
		require.NoError(t, err)
		price, err := catalog.NewMoney(2500, "USD")
		require.NoError(t, err)
		order, err := domain.NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			domain.Address{Street: "42 Harbor Road", City: "Portland"},
			[]domain.OrderItem{{ProductID: "PROD-001", Name: "x", Quantity: 1, UnitPrice: price, LineTotal: price}},
			fee, domain.PaymentOnline)
		require.NoError(t, err)
		return order
	}

	t.Run("valid signature confirms the order", func(t *testing.T) {
		order := pendingOrder(t)
		updated := false
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*domain.Order, error) {
				return order, nil
			},
			updateFn: func(ctx context.Context, o *domain.Order) error {
				updated = true
				return nil
			},
		}
		service := NewOrderService(orders, nil, nil, verifier, nil, discardLogger())

		err := service.ConfirmPayment(context.Background(), PaymentCallback{
			OrderID:    "ORD-001",
			PaymentRef: "PAY-xyz789",
			RawBody:    body,
			Signature:  verifier.Sign(body),
		})
		require.NoError(t, err)
		assert.True(t, updated)
		assert.Equal(t, domain.StatusConfirmed, order.Status)
	})

	t.Run("bad signature is rejected before any state change", func(t *testing.T) {
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*domain.Order, error) {
				t.Fatal("order must not be loaded for an unverified callback")
				return nil, nil
			},
		}
		service := NewOrderService(orders, nil, nil, verifier, nil, discardLogger())

		err := service.ConfirmPayment(context.Background(), PaymentCallback{
			OrderID:    "ORD-001",
			PaymentRef: "PAY-xyz789",
			RawBody:    body,
			Signature:  "deadbeef",
		})
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("tampered body is rejected", func(t *testing.T) {
		service := NewOrderService(&fakeOrderRepo{}, nil, nil, verifier, nil, discardLogger())

		signature := verifier.Sign(body)
		tampered := []byte(`{"orderId":"ORD-001","paymentRef":"PAY-attacker"}`)

		err := service.ConfirmPayment(context.Background(), PaymentCallback{
			OrderID:    "ORD-001",
			PaymentRef: "PAY-attacker",
			RawBody:    tampered,
			Signature:  signature,
		})
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})
}

func TestConfirmCODOrder(t *testing.T) {
	t.Run("online order cannot be COD confirmed", func(t *testing.T) {
		fee, err := catalog.NewMoney(500, "USD")
		require.NoError(t, err)
		price, err := catalog.NewMoney(2500, "USD")
		require.NoError(t, err)
		order, err := domain.NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			domain.Address{Street: "42 Harbor Road", City: "Portland"},
			[]domain.OrderItem{{ProductID: "PROD-001", Name: "x", Quantity: 1, UnitPrice: price, LineTotal: price}},
			fee, domain.PaymentOnline)
		require.NoError(t, err)

		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*domain.Order, error) {
				return order, nil
			},
		}
		service := NewOrderService(orders, nil, nil, nil, nil, discardLogger())

		assert.ErrorIs(t, service.ConfirmCODOrder(context.Background(), "ORD-001"), domain.ErrInvalidPayment)
	})
}

func TestOrderMetrics(t *testing.T) {
	products := &fakeProductRepo{
		getProductsFn: func(ctx context.Context, storeID string, productIDs []string) ([]*catalog.Product, error) {
			return []*catalog.Product{
				testProduct(t, "PROD-001", 1250, 40),
				testProduct(t, "PROD-002", 399, 10),
			}, nil
		},
	}

	t.Run("created orders are counted per store", func(t *testing.T) {
		m := metrics.New(metrics.DefaultConfig("test"))
		orders := &fakeOrderRepo{
			saveFn: func(ctx context.Context, order *domain.Order) error { return nil },
		}

		service := NewOrderService(orders, products, nil, nil, m, discardLogger())
		_, err := service.CreateOrder(context.Background(), validCommand())
		require.NoError(t, err)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCreated.WithLabelValues("test", "STORE-001")))
	})

	t.Run("rejected orders leave the counter untouched", func(t *testing.T) {
		m := metrics.New(metrics.DefaultConfig("test"))
		service := NewOrderService(&fakeOrderRepo{}, products, nil, nil, m, discardLogger())

		cmd := validCommand()
		cmd.Items = nil
		_, err := service.CreateOrder(context.Background(), cmd)
		require.Error(t, err)

		assert.Equal(t, 0, testutil.CollectAndCount(m.OrdersCreated))
	})

	t.Run("cancellations are counted per store", func(t *testing.T) {
		fee, err := catalog.NewMoney(500, "USD")
		require.NoError(t, err)
		price, err := catalog.NewMoney(2500, "USD")
		require.NoError(t, err)
		order, err := domain.NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			domain.Address{Street: "42 Harbor Road", City: "Portland"},
			[]domain.OrderItem{{ProductID: "PROD-001", Name: "x", Quantity: 1, UnitPrice: price, LineTotal: price}},
			fee, domain.PaymentCOD)
		require.NoError(t, err)

		m := metrics.New(metrics.DefaultConfig("test"))
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*domain.Order, error) {
				return order, nil
			},
			updateFn: func(ctx context.Context, o *domain.Order) error { return nil },
		}

		service := NewOrderService(orders, nil, nil, nil, m, discardLogger())
		require.NoError(t, service.CancelOrder(context.Background(), "ORD-001", "customer changed their mind"))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCancelled.WithLabelValues("test", "STORE-001")))
	})
}
