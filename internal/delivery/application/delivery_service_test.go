package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/internal/delivery/domain"
	order "github.com/commerce-platform/fulfillment/internal/order/domain"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

type fakeDeliveryRepo struct {
	saveFn           func(ctx context.Context, delivery *domain.Delivery) error
	updateFn         func(ctx context.Context, delivery *domain.Delivery) error
	getByDeliveryFn  func(ctx context.Context, deliveryID string) (*domain.Delivery, error)
	getByOrderFn     func(ctx context.Context, orderID string) (*domain.Delivery, error)
	listByAgentFn    func(ctx context.Context, agentID string, opts domain.ListOptions) ([]*domain.Delivery, error)
	appendLocationFn func(ctx context.Context, deliveryID string, ping domain.LocationPing) error
	collectCashFn    func(ctx context.Context, deliveryID string, collectedAt time.Time) error
}

func (f *fakeDeliveryRepo) Save(ctx context.Context, delivery *domain.Delivery) error {
	return f.saveFn(ctx, delivery)
}

func (f *fakeDeliveryRepo) Update(ctx context.Context, delivery *domain.Delivery) error {
	return f.updateFn(ctx, delivery)
}

func (f *fakeDeliveryRepo) GetByDeliveryID(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	return f.getByDeliveryFn(ctx, deliveryID)
}

func (f *fakeDeliveryRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	return f.getByOrderFn(ctx, orderID)
}

func (f *fakeDeliveryRepo) ListByAgent(ctx context.Context, agentID string, opts domain.ListOptions) ([]*domain.Delivery, error) {
	return f.listByAgentFn(ctx, agentID, opts)
}

func (f *fakeDeliveryRepo) AppendLocation(ctx context.Context, deliveryID string, ping domain.LocationPing) error {
	return f.appendLocationFn(ctx, deliveryID, ping)
}

func (f *fakeDeliveryRepo) CollectCash(ctx context.Context, deliveryID string, collectedAt time.Time) error {
	return f.collectCashFn(ctx, deliveryID, collectedAt)
}

type fakeOrderRepo struct {
	getFn    func(ctx context.Context, orderID string) (*order.Order, error)
	updateFn func(ctx context.Context, o *order.Order) error
}

func (f *fakeOrderRepo) Save(ctx context.Context, o *order.Order) error { return nil }

func (f *fakeOrderRepo) Update(ctx context.Context, o *order.Order) error {
	return f.updateFn(ctx, o)
}

func (f *fakeOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	return f.getFn(ctx, orderID)
}

func (f *fakeOrderRepo) ListByStore(ctx context.Context, storeID string, opts order.ListOptions) ([]*order.Order, error) {
	return nil, nil
}

type fakeNotifier struct {
	sendFn func(ctx context.Context, phone, message string) error
}

func (f *fakeNotifier) Send(ctx context.Context, phone, message string) error {
	return f.sendFn(ctx, phone, message)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func confirmedOrder(t *testing.T) *order.Order {
	t.Helper()
	price, err := catalog.NewMoney(2500, "USD")
	require.NoError(t, err)
	fee, err := catalog.NewMoney(500, "USD")
	require.NoError(t, err)

	o, err := order.NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
		order.Address{Street: "42 Harbor Road", City: "Portland"},
		[]order.OrderItem{{
			ProductID: "PROD-001",
			Name:      "Ground Coffee 500g",
			Quantity:  2,
			UnitPrice: price,
			LineTotal: price,
		}},
		fee, order.PaymentCOD)
	require.NoError(t, err)
	require.NoError(t, o.ConfirmPayment("COD"))
	o.ClearDomainEvents()
	return o
}

func pendingDelivery(t *testing.T) *domain.Delivery {
	t.Helper()
	d, err := domain.NewDelivery("DLV-001", confirmedOrder(t), "AGENT-001", nil)
	require.NoError(t, err)
	d.ClearDomainEvents()
	return d
}

func TestAssignOrder(t *testing.T) {
	t.Run("creates pending delivery and mirrors the assignment", func(t *testing.T) {
		o := confirmedOrder(t)
		var savedDelivery *domain.Delivery
		orderUpdated := false

		deliveries := &fakeDeliveryRepo{
			saveFn: func(ctx context.Context, delivery *domain.Delivery) error {
				savedDelivery = delivery
				return nil
			},
		}
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*order.Order, error) {
				return o, nil
			},
			updateFn: func(ctx context.Context, o *order.Order) error {
				orderUpdated = true
				return nil
			},
		}

		service := NewDeliveryService(deliveries, orders, &fakeNotifier{}, nil, discardLogger())
		eta := time.Now().Add(45 * time.Minute).UTC()
		delivery, err := service.AssignOrder(context.Background(), AssignOrderCommand{
			OrderID:       "ORD-001",
			AgentID:       "AGENT-001",
			EstimatedTime: &eta,
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusPending, delivery.Status)
		assert.Equal(t, "AGENT-001", delivery.AgentID)
		assert.Equal(t, &eta, delivery.EstimatedTime)
		assert.Same(t, delivery, savedDelivery)
		assert.True(t, orderUpdated)
	})

	t.Run("unconfirmed order cannot be assigned", func(t *testing.T) {
		price, err := catalog.NewMoney(2500, "USD")
		require.NoError(t, err)
		fee, err := catalog.NewMoney(500, "USD")
		require.NoError(t, err)
		pending, err := order.NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			order.Address{Street: "42 Harbor Road", City: "Portland"},
			[]order.OrderItem{{ProductID: "PROD-001", Name: "x", Quantity: 1, UnitPrice: price, LineTotal: price}},
			fee, order.PaymentCOD)
		require.NoError(t, err)

		deliveries := &fakeDeliveryRepo{
			saveFn: func(ctx context.Context, delivery *domain.Delivery) error {
				t.Fatal("delivery must not be saved")
				return nil
			},
		}
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*order.Order, error) {
				return pending, nil
			},
		}

		service := NewDeliveryService(deliveries, orders, &fakeNotifier{}, nil, discardLogger())
		_, err = service.AssignOrder(context.Background(), AssignOrderCommand{OrderID: "ORD-001", AgentID: "AGENT-001"})
		assert.ErrorIs(t, err, order.ErrInvalidStatus)
	})

	t.Run("failed order mirror is surfaced", func(t *testing.T) {
		mirrorErr := errors.New("write conflict")
		deliveries := &fakeDeliveryRepo{
			saveFn: func(ctx context.Context, delivery *domain.Delivery) error { return nil },
		}
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*order.Order, error) {
				return confirmedOrder(t), nil
			},
			updateFn: func(ctx context.Context, o *order.Order) error {
				return mirrorErr
			},
		}

		service := NewDeliveryService(deliveries, orders, &fakeNotifier{}, nil, discardLogger())
		_, err := service.AssignOrder(context.Background(), AssignOrderCommand{OrderID: "ORD-001", AgentID: "AGENT-001"})
		assert.ErrorIs(t, err, mirrorErr)
	})
}

func TestUpdateStatus(t *testing.T) {
	t.Run("pickup transitions, mirrors and notifies", func(t *testing.T) {
		d := pendingDelivery(t)
		o := confirmedOrder(t)
		require.NoError(t, o.AssignAgent("AGENT-001"))

		var notified string
		orderMirrored := false

		deliveries := &fakeDeliveryRepo{
			getByDeliveryFn: func(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
				return d, nil
			},
			updateFn: func(ctx context.Context, delivery *domain.Delivery) error { return nil },
		}
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*order.Order, error) {
				return o, nil
			},
			updateFn: func(ctx context.Context, o *order.Order) error {
				orderMirrored = true
				return nil
			},
		}
		notifier := &fakeNotifier{
			sendFn: func(ctx context.Context, phone, message string) error {
				notified = message
				assert.Equal(t, "+15550001111", phone)
				return nil
			},
		}

		service := NewDeliveryService(deliveries, orders, notifier, nil, discardLogger())
		updated, err := service.UpdateStatus(context.Background(), UpdateStatusCommand{
			DeliveryID: "DLV-001",
			NewStatus:  domain.StatusPickedUp,
			Note:       "picked up from back entrance",
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusPickedUp, updated.Status)
		assert.Contains(t, notified, "picked up")
		assert.True(t, orderMirrored)
		assert.Equal(t, order.StatusOutForDelivery, o.Status)
		require.Len(t, updated.Notes, 1)
	})

	t.Run("illegal transition leaves the delivery untouched", func(t *testing.T) {
		d := pendingDelivery(t)
		deliveries := &fakeDeliveryRepo{
			getByDeliveryFn: func(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
				return d, nil
			},
			updateFn: func(ctx context.Context, delivery *domain.Delivery) error {
				t.Fatal("update must not run for a rejected transition")
				return nil
			},
		}

		service := NewDeliveryService(deliveries, &fakeOrderRepo{}, &fakeNotifier{}, nil, discardLogger())
		_, err := service.UpdateStatus(context.Background(), UpdateStatusCommand{
			DeliveryID: "DLV-001",
			NewStatus:  domain.StatusDelivered,
		})

		var transitionErr *domain.InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, domain.StatusPending, d.Status)
	})

	t.Run("mirror and notification failures are swallowed", func(t *testing.T) {
		d := pendingDelivery(t)
		deliveries := &fakeDeliveryRepo{
			getByDeliveryFn: func(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
				return d, nil
			},
			updateFn: func(ctx context.Context, delivery *domain.Delivery) error { return nil },
		}
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*order.Order, error) {
				return nil, errors.New("order lookup timed out")
			},
		}
		notifier := &fakeNotifier{
			sendFn: func(ctx context.Context, phone, message string) error {
				return errors.New("sms provider down")
			},
		}

		service := NewDeliveryService(deliveries, orders, notifier, nil, discardLogger())
		updated, err := service.UpdateStatus(context.Background(), UpdateStatusCommand{
			DeliveryID: "DLV-001",
			NewStatus:  domain.StatusPickedUp,
		})
		require.NoError(t, err, "the committed transition must not fail on side effects")
		assert.Equal(t, domain.StatusPickedUp, updated.Status)
	})

	t.Run("location ping rides with the status update", func(t *testing.T) {
		d := pendingDelivery(t)
		deliveries := &fakeDeliveryRepo{
			getByDeliveryFn: func(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
				return d, nil
			},
			updateFn: func(ctx context.Context, delivery *domain.Delivery) error { return nil },
		}
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*order.Order, error) {
				return nil, errors.New("not relevant here")
			},
		}
		notifier := &fakeNotifier{
			sendFn: func(ctx context.Context, phone, message string) error { return nil },
		}

		service := NewDeliveryService(deliveries, orders, notifier, nil, discardLogger())
		updated, err := service.UpdateStatus(context.Background(), UpdateStatusCommand{
			DeliveryID: "DLV-001",
			NewStatus:  domain.StatusPickedUp,
			Location:   &domain.LocationPing{Latitude: 45.52, Longitude: -122.68, RecordedAt: time.Now().UTC()},
		})
		require.NoError(t, err)
		require.Len(t, updated.Locations, 1)
		assert.Equal(t, 45.52, updated.Locations[0].Latitude)
	})
}

func TestTrackLocation(t *testing.T) {
	var got domain.LocationPing
	deliveries := &fakeDeliveryRepo{
		appendLocationFn: func(ctx context.Context, deliveryID string, ping domain.LocationPing) error {
			assert.Equal(t, "DLV-001", deliveryID)
			got = ping
			return nil
		},
	}

	service := NewDeliveryService(deliveries, &fakeOrderRepo{}, &fakeNotifier{}, nil, discardLogger())
	require.NoError(t, service.TrackLocation(context.Background(), "DLV-001", 45.52, -122.68))

	assert.Equal(t, 45.52, got.Latitude)
	assert.Equal(t, -122.68, got.Longitude)
	assert.False(t, got.RecordedAt.IsZero())
}

func TestDeliveryMetrics(t *testing.T) {
	t.Run("committed transitions are counted by edge", func(t *testing.T) {
		d := pendingDelivery(t)
		m := metrics.New(metrics.DefaultConfig("test"))

		deliveries := &fakeDeliveryRepo{
			getByDeliveryFn: func(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
				return d, nil
			},
			updateFn: func(ctx context.Context, delivery *domain.Delivery) error { return nil },
		}
		orders := &fakeOrderRepo{
			getFn: func(ctx context.Context, orderID string) (*order.Order, error) {
				return nil, errors.New("not relevant here")
			},
		}
		notifier := &fakeNotifier{
			sendFn: func(ctx context.Context, phone, message string) error { return nil },
		}

		service := NewDeliveryService(deliveries, orders, notifier, m, discardLogger())
		_, err := service.UpdateStatus(context.Background(), UpdateStatusCommand{
			DeliveryID: "DLV-001",
			NewStatus:  domain.StatusPickedUp,
		})
		require.NoError(t, err)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryTransitions.WithLabelValues("test", "PENDING", "PICKED_UP")))
	})

	t.Run("rejected transitions are not counted", func(t *testing.T) {
		d := pendingDelivery(t)
		m := metrics.New(metrics.DefaultConfig("test"))

		deliveries := &fakeDeliveryRepo{
			getByDeliveryFn: func(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
				return d, nil
			},
		}

		service := NewDeliveryService(deliveries, &fakeOrderRepo{}, &fakeNotifier{}, m, discardLogger())
		_, err := service.UpdateStatus(context.Background(), UpdateStatusCommand{
			DeliveryID: "DLV-001",
			NewStatus:  domain.StatusDelivered,
		})
		require.Error(t, err)

		assert.Equal(t, 0, testutil.CollectAndCount(m.DeliveryTransitions))
	})
}
