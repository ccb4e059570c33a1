package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money represents a monetary value with currency.
// Amount is stored in the smallest currency unit (cents) to avoid
// floating point issues.
type Money struct {
	amount   int64
	currency string // ISO 4217 currency code
}

// Money errors
var (
	ErrInvalidCurrency   = errors.New("invalid currency code")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrNegativeMoney     = errors.New("money amount cannot be negative")
	ErrInvalidMultiplier = errors.New("multiplier must be positive")
	ErrAmountOverflow    = errors.New("money amount overflows int64")
)

// NewMoney creates a new Money value object. amount is in cents.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeMoney
	}

	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}

	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// ZeroMoney creates a zero money value
func ZeroMoney(currency string) Money {
	return Money{amount: 0, currency: currency}
}

// Amount returns the amount in cents
func (m Money) Amount() int64 {
	return m.amount
}

// Currency returns the ISO 4217 currency code
func (m Money) Currency() string {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount == 0
}

// Add adds two money values (must have same currency)
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, ErrCurrencyMismatch
	}

	return Money{
		amount:   m.amount + other.amount,
		currency: m.currency,
	}, nil
}

// Multiply multiplies the amount by a quantity
func (m Money) Multiply(qty int) (Money, error) {
	if qty < 0 {
		return Money{}, ErrInvalidMultiplier
	}

	total := m.amount * int64(qty)
	if qty != 0 && total/int64(qty) != m.amount {
		return Money{}, ErrAmountOverflow
	}

	return Money{
		amount:   total,
		currency: m.currency,
	}, nil
}

// Equals checks if two money values are equal (amount and currency)
func (m Money) Equals(other Money) bool {
	return m.amount == other.amount && m.currency == other.currency
}

// String returns a string representation of the money
func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", float64(m.amount)/100.0, m.currency)
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}{m.amount, m.currency})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var doc struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	m.amount = doc.Amount
	m.currency = doc.Currency
	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	doc := primitive.D{
		{Key: "amount", Value: m.amount},
		{Key: "currency", Value: m.currency},
	}
	return bson.MarshalValue(doc)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var doc primitive.D
	if err := bson.UnmarshalValue(t, data, &doc); err != nil {
		return err
	}

	docMap := doc.Map()
	if amount, ok := docMap["amount"].(int64); ok {
		m.amount = amount
	}
	if currency, ok := docMap["currency"].(string); ok {
		m.currency = currency
	}

	return nil
}
