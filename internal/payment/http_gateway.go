package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/commerce-platform/fulfillment/pkg/metrics"
	"github.com/commerce-platform/fulfillment/pkg/resilience"
)

// HTTPGatewayConfig holds configuration for the HTTP payment gateway
type HTTPGatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPGateway calls the payment provider over HTTP, guarded by a
// circuit breaker so a degraded provider cannot pile up requests
type HTTPGateway struct {
	config  HTTPGatewayConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPGateway creates a new HTTP payment gateway
func NewHTTPGateway(config HTTPGatewayConfig, m *metrics.Metrics, logger *slog.Logger) *HTTPGateway {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &HTTPGateway{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("payment-gateway"), m, logger),
		logger:  logger,
	}
}

type createReferenceRequest struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createReferenceResponse struct {
	PaymentRef string `json:"paymentRef"`
}

// CreatePaymentReference implements Gateway
func (g *HTTPGateway) CreatePaymentReference(ctx context.Context, orderID string, amount int64, currency string) (string, error) {
	body, err := json.Marshal(createReferenceRequest{
		OrderID:  orderID,
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment request: %w", err)
	}

	result, err := g.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/v1/payments", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("payment provider returned status %d", resp.StatusCode)
		}

		var out createReferenceResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode payment response: %w", err)
		}
		return out.PaymentRef, nil
	})
	if err != nil {
		return "", fmt.Errorf("payment reference creation failed for order %s: %w", orderID, err)
	}

	return result.(string), nil
}
