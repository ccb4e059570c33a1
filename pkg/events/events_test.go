package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryWrap(t *testing.T) {
	factory := NewFactory(SourceOrders)

	placed := &OrderPlaced{
		OrderID:     "ORD-001",
		StoreID:     "STORE-001",
		Items:       []OrderLine{{ProductID: "PROD-001", Quantity: 2}},
		TotalAmount: 3399,
		Currency:    "USD",
		PlacedAt:    time.Now().UTC(),
	}

	env, err := factory.Wrap("ORD-001", placed)
	require.NoError(t, err)

	assert.Equal(t, "1.0", env.SpecVersion)
	assert.Equal(t, TypeOrderPlaced, env.Type)
	assert.Equal(t, SourceOrders, env.Source)
	assert.Equal(t, "ORD-001", env.Subject)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "application/json", env.DataContentType)
}

func TestFactoryWrapWithCorrelation(t *testing.T) {
	factory := NewFactory(SourceDelivery)

	env, err := factory.WrapWithCorrelation("DLV-001", &DeliveryStatusChanged{
		DeliveryID: "DLV-001",
		OrderID:    "ORD-001",
		ChangedAt:  time.Now().UTC(),
	}, "corr-1", "STORE-001", "ORD-001")
	require.NoError(t, err)

	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, "STORE-001", env.StoreID)
	assert.Equal(t, "ORD-001", env.OrderID)
}

func TestDecode(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	tests := []struct {
		name  string
		event DomainEvent
	}{
		{"order placed", &OrderPlaced{OrderID: "ORD-001", StoreID: "STORE-001", Items: []OrderLine{{ProductID: "PROD-001", Quantity: 2}}, TotalAmount: 3399, Currency: "USD", PlacedAt: now}},
		{"order cancelled", &OrderCancelled{OrderID: "ORD-001", StoreID: "STORE-001", Reason: "customer request", CancelledAt: now}},
		{"low stock alert", &LowStockAlert{StoreID: "STORE-001", Products: []LowStockProduct{{ProductID: "PROD-001", Name: "Ground Coffee 500g", StockQuantity: 3, LowStockThreshold: 5}}, AlertedAt: now}},
		{"deduction failed", &StockDeductionFailed{OrderID: "ORD-001", StoreID: "STORE-001", Items: []FailedDeduction{{ProductID: "PROD-001", Requested: 3}}, Reason: "insufficient stock", FailedAt: now}},
		{"delivery status changed", &DeliveryStatusChanged{DeliveryID: "DLV-001", OrderID: "ORD-001", AgentID: "AGENT-001", OldStatus: "PENDING", NewStatus: "PICKED_UP", ChangedAt: now}},
		{"cash collected", &CashCollected{DeliveryID: "DLV-001", OrderID: "ORD-001", AgentID: "AGENT-001", ExpectedAmount: 3000, CollectedAmount: 3200, Variance: 200, Status: "OVER_COLLECTED", CollectedAt: now}},
	}

	factory := NewFactory(SourceOrders)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := factory.Wrap("subject", tt.event)
			require.NoError(t, err)

			decoded, err := Decode(env)
			require.NoError(t, err)
			assert.Equal(t, tt.event, decoded)
		})
	}

	t.Run("unknown type is an error", func(t *testing.T) {
		env, err := factory.Wrap("subject", &OrderPlaced{PlacedAt: now})
		require.NoError(t, err)
		env.Type = "commerce.order.unknown"

		_, err = Decode(env)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commerce.order.unknown")
	})

	t.Run("malformed payload is an error", func(t *testing.T) {
		env, err := factory.Wrap("subject", &OrderPlaced{PlacedAt: now})
		require.NoError(t, err)
		env.Data = []byte(`{"orderId":`)

		_, err = Decode(env)
		assert.Error(t, err)
	})
}
