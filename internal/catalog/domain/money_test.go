package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name        string
		amount      int64
		currency    string
		expectError error
	}{
		{name: "valid", amount: 1250, currency: "USD"},
		{name: "zero amount", amount: 0, currency: "EUR"},
		{name: "negative amount", amount: -1, currency: "USD", expectError: ErrNegativeMoney},
		{name: "short currency", amount: 100, currency: "US", expectError: ErrInvalidCurrency},
		{name: "long currency", amount: 100, currency: "USDX", expectError: ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoney(tt.amount, tt.currency)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, m.Amount())
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestMoneyAdd(t *testing.T) {
	a, _ := NewMoney(1000, "USD")
	b, _ := NewMoney(250, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), sum.Amount())

	eur, _ := NewMoney(100, "EUR")
	_, err = a.Add(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoneyMultiply(t *testing.T) {
	price, _ := NewMoney(399, "USD")

	total, err := price.Multiply(3)
	require.NoError(t, err)
	assert.Equal(t, int64(1197), total.Amount())

	zero, err := price.Multiply(0)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = price.Multiply(-1)
	assert.ErrorIs(t, err, ErrInvalidMultiplier)

	huge, _ := NewMoney(math.MaxInt64/2, "USD")
	_, err = huge.Multiply(3)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	max, _ := NewMoney(math.MaxInt64, "USD")
	one, err := max.Multiply(1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), one.Amount())
}

func TestMoneyString(t *testing.T) {
	m, _ := NewMoney(1250, "USD")
	assert.Equal(t, "12.50 USD", m.String())
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	m, _ := NewMoney(1250, "USD")

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1250,"currency":"USD"}`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, m.Equals(decoded))
}

func TestMoneyBSONRoundTrip(t *testing.T) {
	m, _ := NewMoney(4999, "EUR")

	typ, data, err := m.MarshalBSONValue()
	require.NoError(t, err)

	var decoded Money
	require.NoError(t, decoded.UnmarshalBSONValue(typ, data))
	assert.True(t, m.Equals(decoded))
}
