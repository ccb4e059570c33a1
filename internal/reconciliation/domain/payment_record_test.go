package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/commerce-platform/fulfillment/internal/catalog/domain"
)

func usd(t *testing.T, amount int64) catalog.Money {
	t.Helper()
	m, err := catalog.NewMoney(amount, "USD")
	require.NoError(t, err)
	return m
}

func TestClassifyVariance(t *testing.T) {
	assert.Equal(t, VarianceMatched, ClassifyVariance(0))
	assert.Equal(t, VarianceOverCollected, ClassifyVariance(1))
	assert.Equal(t, VarianceShort, ClassifyVariance(-1))
}

func TestNewPaymentRecord(t *testing.T) {
	tests := []struct {
		name           string
		expected       int64
		collected      int64
		expectVariance int64
		expectStatus   VarianceStatus
	}{
		{name: "exact collection", expected: 3000, collected: 3000, expectVariance: 0, expectStatus: VarianceMatched},
		{name: "over collection", expected: 3000, collected: 3200, expectVariance: 200, expectStatus: VarianceOverCollected},
		{name: "short collection", expected: 3000, collected: 2500, expectVariance: -500, expectStatus: VarianceShort},
		{name: "nothing collected", expected: 3000, collected: 0, expectVariance: -3000, expectStatus: VarianceShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := NewPaymentRecord("DLV-001", "ORD-001", "STORE-001", "AGENT-001",
				usd(t, tt.expected), usd(t, tt.collected), "")
			require.NoError(t, err)

			assert.Equal(t, "COD-DLV-001", record.PaymentRef)
			assert.Equal(t, tt.expectVariance, record.Variance)
			assert.Equal(t, tt.expectStatus, record.Status)
			assert.NotZero(t, record.CollectedAt)
		})
	}
}

func TestPaymentRef(t *testing.T) {
	assert.Equal(t, "COD-DLV-042", PaymentRef("DLV-042"))
}
