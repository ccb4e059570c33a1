package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Errors
var (
	ErrInvalidSignature = errors.New("payment callback signature verification failed")
)

// Gateway is the port to the external payment provider
type Gateway interface {
	// CreatePaymentReference registers a payable reference for an order
	// and returns the provider's payment reference.
	CreatePaymentReference(ctx context.Context, orderID string, amount int64, currency string) (string, error)
}

// Verifier authenticates incoming payment confirmation callbacks
type Verifier interface {
	// Verify checks the provider signature over the raw callback body.
	// A failed verification must reject the callback with no state change.
	Verify(payload []byte, signature string) error
}

// HMACVerifier verifies callbacks signed with HMAC-SHA256 over the raw
// request body, hex encoded
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier with the shared webhook secret
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify implements Verifier
func (v *HMACVerifier) Verify(payload []byte, signature string) error {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)

	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 signature for a payload. Used by
// tests and by outbound requests that the provider verifies.
func (v *HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
