package notification

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

// Notifier sends customer-facing notifications. Callers treat every
// notification as best effort: a send failure is logged and swallowed,
// never propagated into the business operation that triggered it.
type Notifier interface {
	Send(ctx context.Context, phone, message string) error
}

// NoopNotifier discards notifications; used in tests and local runs
type NoopNotifier struct{}

// Send implements Notifier
func (NoopNotifier) Send(ctx context.Context, phone, message string) error {
	return nil
}

// HTTPNotifierConfig holds configuration for the SMS provider client
type HTTPNotifierConfig struct {
	BaseURL string
	APIKey  string
	Sender  string
	Timeout time.Duration
}

// HTTPNotifier sends SMS through the provider's HTTP API, guarded by a
// circuit breaker so a degraded provider fails fast
type HTTPNotifier struct {
	config  HTTPNotifierConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPNotifier creates a new HTTP notifier
func NewHTTPNotifier(config HTTPNotifierConfig, m *metrics.Metrics, logger *slog.Logger) *HTTPNotifier {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	return &HTTPNotifier{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("sms-provider"), m, logger),
		logger:  logger,
	}
}

type sendSMSRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// Send implements Notifier
func (n *HTTPNotifier) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(sendSMSRequest{
		To:      phone,
		From:    n.config.Sender,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	_, err = n.breaker.Execute(ctx, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.BaseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+n.config.APIKey)

		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("SMS provider returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	return nil
}
