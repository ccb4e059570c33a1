package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrice(t *testing.T) Money {
	t.Helper()
	price, err := NewMoney(1250, "USD")
	require.NoError(t, err)
	return price
}

func TestNewProduct(t *testing.T) {
	tests := []struct {
		name          string
		storeID       string
		productID     string
		productName   string
		stockQuantity int
		threshold     int
		expectError   error
	}{
		{name: "valid", storeID: "STORE-001", productID: "PROD-001", productName: "Ground Coffee 500g", stockQuantity: 40, threshold: 5},
		{name: "zero stock is allowed", storeID: "STORE-001", productID: "PROD-001", productName: "Ground Coffee 500g"},
		{name: "missing store", productID: "PROD-001", productName: "Ground Coffee 500g", expectError: ErrEmptyStoreID},
		{name: "missing product ID", storeID: "STORE-001", productName: "Ground Coffee 500g", expectError: ErrEmptyProductID},
		{name: "missing name", storeID: "STORE-001", productID: "PROD-001", expectError: ErrEmptyName},
		{name: "negative stock", storeID: "STORE-001", productID: "PROD-001", productName: "Ground Coffee 500g", stockQuantity: -1, expectError: ErrInvalidQuantity},
		{name: "negative threshold", storeID: "STORE-001", productID: "PROD-001", productName: "Ground Coffee 500g", threshold: -1, expectError: ErrInvalidThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, err := NewProduct(tt.storeID, tt.productID, tt.productName, testPrice(t), tt.stockQuantity, tt.threshold)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.True(t, product.IsActive)
			assert.Equal(t, tt.stockQuantity, product.StockQuantity)
		})
	}
}

func TestProductIsLowStock(t *testing.T) {
	product, err := NewProduct("STORE-001", "PROD-001", "Ground Coffee 500g", testPrice(t), 10, 5)
	require.NoError(t, err)

	assert.False(t, product.IsLowStock())

	product.StockQuantity = 5
	assert.True(t, product.IsLowStock(), "at threshold counts as low")

	product.StockQuantity = 0
	assert.True(t, product.IsLowStock())
}

func TestProductCanFulfill(t *testing.T) {
	product, err := NewProduct("STORE-001", "PROD-001", "Ground Coffee 500g", testPrice(t), 10, 5)
	require.NoError(t, err)

	assert.True(t, product.CanFulfill(10))
	assert.False(t, product.CanFulfill(11))

	product.Deactivate()
	assert.False(t, product.CanFulfill(1), "inactive products never fulfill")
}

func TestProductUpdatePrice(t *testing.T) {
	product, err := NewProduct("STORE-001", "PROD-001", "Ground Coffee 500g", testPrice(t), 10, 5)
	require.NoError(t, err)

	newPrice, err := NewMoney(1399, "USD")
	require.NoError(t, err)
	product.UpdatePrice(newPrice)

	assert.Equal(t, int64(1399), product.Price.Amount())
}
