package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifier(t *testing.T) {
	verifier := NewHMACVerifier("webhook-secret")
	body := []byte(`{"orderId":"ORD-001","paymentRef":"PAY-xyz789","status":"PAID"}`)

	t.Run("accepts its own signature", func(t *testing.T) {
		require.NoError(t, verifier.Verify(body, verifier.Sign(body)))
	})

	t.Run("rejects a signature from another secret", func(t *testing.T) {
		other := NewHMACVerifier("wrong-secret")
		err := verifier.Verify(body, other.Sign(body))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("rejects a tampered body", func(t *testing.T) {
		signature := verifier.Sign(body)
		tampered := []byte(`{"orderId":"ORD-001","paymentRef":"PAY-xyz789","status":"REFUNDED"}`)
		assert.ErrorIs(t, verifier.Verify(tampered, signature), ErrInvalidSignature)
	})

	t.Run("rejects a signature that is not hex", func(t *testing.T) {
		assert.ErrorIs(t, verifier.Verify(body, "not-hex!"), ErrInvalidSignature)
	})

	t.Run("rejects an empty signature", func(t *testing.T) {
		assert.ErrorIs(t, verifier.Verify(body, ""), ErrInvalidSignature)
	})
}
