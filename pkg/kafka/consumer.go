package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/commerce-platform/fulfillment/pkg/events"
	"github.com/commerce-platform/fulfillment/pkg/logging"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

// EventHandler is a function that handles an event envelope
type EventHandler func(ctx context.Context, env *events.Envelope) error

// Consumer handles consuming messages from Kafka topics.
// Delivery is at-least-once and unordered; handlers must be idempotent.
type Consumer struct {
	config   *Config
	readers  map[string]*kafka.Reader
	handlers map[string]map[string]EventHandler // topic -> eventType -> handler
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewConsumer creates a new Kafka consumer. A nil metrics instance
// disables consume instrumentation.
func NewConsumer(config *Config, logger *slog.Logger, m *metrics.Metrics) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		config:   config,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]map[string]EventHandler),
		logger:   logger,
		metrics:  m,
	}
}

// Subscribe subscribes to a topic with a handler for a specific event type
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	if _, exists := c.handlers[topic]; !exists {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

// SubscribeAll subscribes to all event types on a topic with a single handler
func (c *Consumer) SubscribeAll(topic string, handler EventHandler) {
	c.Subscribe(topic, "*", handler)
}

func (c *Consumer) getReader(topic string) *kafka.Reader {
	if reader, exists := c.readers[topic]; exists {
		return reader
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: c.config.CommitTimeout,
	})

	c.readers[topic] = reader
	return reader
}

// Start starts consuming messages from all subscribed topics until ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	for topic := range c.handlers {
		go c.consumeTopic(ctx, topic)
	}

	<-ctx.Done()
	return ctx.Err()
}

// consumeTopic consumes messages from a single topic. A failing record is
// left uncommitted for redelivery; handlers treat permanent failures as
// handled (report them via an event and return nil) so only transient
// errors are retried. Handlers must be idempotent either way.
func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	reader := c.getReader(topic)

	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping consumer for topic", "topic", topic)
			return
		default:
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("Error fetching message", "topic", topic, "error", err)
				continue
			}

			env, err := c.parseMessage(msg)
			if err != nil {
				c.logger.Error("Error parsing message", "topic", topic, "error", err)
				if commitErr := reader.CommitMessages(ctx, msg); commitErr != nil {
					c.logger.Error("Error committing message", "topic", topic, "error", commitErr)
				}
				continue
			}

			if err := c.handleEvent(ctx, topic, env); err != nil {
				c.logger.Error("Error handling event, leaving uncommitted for redelivery",
					"topic", topic,
					"eventType", env.Type,
					"eventId", env.ID,
					"error", err,
				)
				continue
			}

			if err := reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("Error committing message", "topic", topic, "error", err)
			}
		}
	}
}

// parseMessage parses a Kafka message into an event envelope
func (c *Consumer) parseMessage(msg kafka.Message) (*events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, header := range msg.Headers {
		switch header.Key {
		case "ce-correlationid":
			env.CorrelationID = string(header.Value)
		case "ce-storeid":
			env.StoreID = string(header.Value)
		case "ce-orderid":
			env.OrderID = string(header.Value)
		}
	}

	return &env, nil
}

// handleEvent routes an envelope to the appropriate handler
func (c *Consumer) handleEvent(ctx context.Context, topic string, env *events.Envelope) error {
	handlers, exists := c.handlers[topic]
	if !exists {
		return fmt.Errorf("no handlers registered for topic %s", topic)
	}

	ctx = logging.ContextWithEventAttributes(ctx, env.CorrelationID, env.StoreID, env.OrderID)

	handler, exists := handlers[env.Type]
	if !exists {
		handler, exists = handlers["*"]
	}
	if !exists {
		c.logger.Warn("No handler found for event type", "topic", topic, "eventType", env.Type)
		return nil
	}

	err := handler(ctx, env)
	if c.metrics != nil {
		c.metrics.RecordKafkaConsume(topic, env.Type, err == nil)
	}
	return err
}

// Close closes all readers
func (c *Consumer) Close() error {
	var lastErr error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close reader for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
