package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
	"github.com/commerce-platform/fulfillment/pkg/events"
)

func money(t *testing.T, amount int64) catalog.Money {
	t.Helper()
	m, err := catalog.NewMoney(amount, "USD")
	require.NoError(t, err)
	return m
}

func createTestItems(t *testing.T) []OrderItem {
	return []OrderItem{
		{
			ProductID: "PROD-001",
			Name:      "Ground Coffee 500g",
			Quantity:  2,
			UnitPrice: money(t, 1250),
			LineTotal: money(t, 2500),
		},
		{
			ProductID: "PROD-002",
			Name:      "Oat Milk 1L",
			Quantity:  1,
			UnitPrice: money(t, 399),
			LineTotal: money(t, 399),
		},
	}
}

func createTestAddress() Address {
	return Address{
		Street:  "42 Harbor Road",
		City:    "Portland",
		ZipCode: "97201",
	}
}

func createConfirmedOrder(t *testing.T) *Order {
	order, err := NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
		createTestAddress(), createTestItems(t), money(t, 500), PaymentCOD)
	require.NoError(t, err)
	require.NoError(t, order.ConfirmPayment("COD"))
	order.ClearDomainEvents()
	return order
}

func TestNewOrder(t *testing.T) {
	tests := []struct {
		name          string
		items         func(t *testing.T) []OrderItem
		paymentMethod PaymentMethod
		expectError   error
	}{
		{
			name:          "valid COD order",
			items:         createTestItems,
			paymentMethod: PaymentCOD,
		},
		{
			name:          "valid online order",
			items:         createTestItems,
			paymentMethod: PaymentOnline,
		},
		{
			name:          "no items",
			items:         func(t *testing.T) []OrderItem { return nil },
			paymentMethod: PaymentCOD,
			expectError:   ErrNoItems,
		},
		{
			name: "zero quantity item",
			items: func(t *testing.T) []OrderItem {
				items := createTestItems(t)
				items[0].Quantity = 0
				return items
			},
			paymentMethod: PaymentCOD,
			expectError:   ErrInvalidQuantity,
		},
		{
			name:          "unknown payment method",
			items:         createTestItems,
			paymentMethod: PaymentMethod("CHEQUE"),
			expectError:   ErrInvalidPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
				createTestAddress(), tt.items(t), money(t, 500), tt.paymentMethod)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, order)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, StatusPendingPayment, order.Status)
			assert.Equal(t, int64(2899), order.Subtotal.Amount())
			assert.Equal(t, int64(3399), order.TotalAmount.Amount())
			assert.Empty(t, order.DomainEvents())
		})
	}
}

func TestOrderConfirmPayment(t *testing.T) {
	t.Run("transitions to confirmed and emits OrderPlaced", func(t *testing.T) {
		order, err := NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			createTestAddress(), createTestItems(t), money(t, 500), PaymentOnline)
		require.NoError(t, err)

		require.NoError(t, order.ConfirmPayment("PAY-abc123"))

		assert.Equal(t, StatusConfirmed, order.Status)
		assert.Equal(t, "PAY-abc123", order.PaymentRef)

		domainEvents := order.DomainEvents()
		require.Len(t, domainEvents, 1)
		placed, ok := domainEvents[0].(*events.OrderPlaced)
		require.True(t, ok)
		assert.Equal(t, "ORD-001", placed.OrderID)
		assert.Equal(t, int64(3399), placed.TotalAmount)
		require.Len(t, placed.Items, 2)
		assert.Equal(t, "PROD-001", placed.Items[0].ProductID)
		assert.Equal(t, 2, placed.Items[0].Quantity)
	})

	t.Run("replay with same reference is a no-op", func(t *testing.T) {
		order, err := NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			createTestAddress(), createTestItems(t), money(t, 500), PaymentOnline)
		require.NoError(t, err)

		require.NoError(t, order.ConfirmPayment("PAY-abc123"))
		order.ClearDomainEvents()

		require.NoError(t, order.ConfirmPayment("PAY-abc123"))
		assert.Empty(t, order.DomainEvents())
	})

	t.Run("different reference on confirmed order is rejected", func(t *testing.T) {
		order, err := NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			createTestAddress(), createTestItems(t), money(t, 500), PaymentOnline)
		require.NoError(t, err)
		require.NoError(t, order.ConfirmPayment("PAY-abc123"))

		assert.ErrorIs(t, order.ConfirmPayment("PAY-other"), ErrOrderNotPayable)
	})

	t.Run("cancelled order cannot be confirmed", func(t *testing.T) {
		order, err := NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			createTestAddress(), createTestItems(t), money(t, 500), PaymentOnline)
		require.NoError(t, err)
		require.NoError(t, order.Cancel("changed my mind"))

		assert.ErrorIs(t, order.ConfirmPayment("PAY-abc123"), ErrOrderCancelled)
	})
}

func TestOrderCancel(t *testing.T) {
	t.Run("emits OrderCancelled with the item lines", func(t *testing.T) {
		order := createConfirmedOrder(t)

		require.NoError(t, order.Cancel("customer request"))

		assert.Equal(t, StatusCancelled, order.Status)
		assert.Equal(t, "customer request", order.CancelReason)

		domainEvents := order.DomainEvents()
		require.Len(t, domainEvents, 1)
		cancelled, ok := domainEvents[0].(*events.OrderCancelled)
		require.True(t, ok)
		assert.Equal(t, "ORD-001", cancelled.OrderID)
		assert.Len(t, cancelled.Items, 2)
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		order := createConfirmedOrder(t)
		require.NoError(t, order.Cancel("customer request"))
		order.ClearDomainEvents()

		require.NoError(t, order.Cancel("again"))
		assert.Equal(t, "customer request", order.CancelReason)
		assert.Empty(t, order.DomainEvents())
	})

	t.Run("delivered order cannot be cancelled", func(t *testing.T) {
		order := createConfirmedOrder(t)
		require.NoError(t, order.AssignAgent("AGENT-001"))
		require.NoError(t, order.MirrorDeliveryStatus(StatusDelivered))

		assert.ErrorIs(t, order.Cancel("too late"), ErrOrderDelivered)
		assert.Equal(t, StatusDelivered, order.Status)
	})
}

func TestOrderAssignAgent(t *testing.T) {
	t.Run("assigns agent to confirmed order", func(t *testing.T) {
		order := createConfirmedOrder(t)

		require.NoError(t, order.AssignAgent("AGENT-001"))
		assert.Equal(t, StatusAssignedToDelivery, order.Status)
		assert.Equal(t, "AGENT-001", order.AgentID)
	})

	t.Run("pending order cannot be assigned", func(t *testing.T) {
		order, err := NewOrder("ORD-001", "STORE-001", "Dana Reyes", "+15550001111",
			createTestAddress(), createTestItems(t), money(t, 500), PaymentCOD)
		require.NoError(t, err)

		assert.ErrorIs(t, order.AssignAgent("AGENT-001"), ErrInvalidStatus)
	})

	t.Run("cancelled order cannot be assigned", func(t *testing.T) {
		order := createConfirmedOrder(t)
		require.NoError(t, order.Cancel("out of stock"))

		assert.ErrorIs(t, order.AssignAgent("AGENT-001"), ErrOrderCancelled)
	})
}

func TestOrderMirrorDeliveryStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		expectError error
	}{
		{name: "out for delivery", status: StatusOutForDelivery},
		{name: "delivered", status: StatusDelivered},
		{name: "delivery failed", status: StatusDeliveryFailed},
		{name: "confirmed is not a delivery status", status: StatusConfirmed, expectError: ErrInvalidStatus},
		{name: "cancelled is not a delivery status", status: StatusCancelled, expectError: ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := createConfirmedOrder(t)
			require.NoError(t, order.AssignAgent("AGENT-001"))

			err := order.MirrorDeliveryStatus(tt.status)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Equal(t, StatusAssignedToDelivery, order.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, order.Status)
		})
	}
}

func TestOrderIsCOD(t *testing.T) {
	codOrder := createConfirmedOrder(t)
	assert.True(t, codOrder.IsCOD())

	onlineOrder, err := NewOrder("ORD-002", "STORE-001", "Dana Reyes", "+15550001111",
		createTestAddress(), createTestItems(t), money(t, 500), PaymentOnline)
	require.NoError(t, err)
	assert.False(t, onlineOrder.IsCOD())
}
