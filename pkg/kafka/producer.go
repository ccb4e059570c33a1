package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/commerce-platform/fulfillment/pkg/events"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

// Producer handles publishing event envelopes to Kafka topics
type Producer struct {
	writers map[string]*kafka.Writer
	config  *Config
	metrics *metrics.Metrics
}

// NewProducer creates a new Kafka producer. A nil metrics instance
// disables publish instrumentation.
func NewProducer(config *Config, m *metrics.Metrics) *Producer {
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		config:  config,
		metrics: m,
	}
}

// getWriter returns a writer for the specified topic, creating one if necessary
func (p *Producer) getWriter(topic string) *kafka.Writer {
	if writer, exists := p.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		Async:        false,
	}

	p.writers[topic] = writer
	return writer
}

// PublishEnvelope publishes an event envelope to the specified topic
func (p *Producer) PublishEnvelope(ctx context.Context, topic string, env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(env.Subject),
		Value: data,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(env.SpecVersion)},
			{Key: "ce-type", Value: []byte(env.Type)},
			{Key: "ce-source", Value: []byte(env.Source)},
			{Key: "ce-id", Value: []byte(env.ID)},
			{Key: "ce-time", Value: []byte(env.Time.Format(time.RFC3339))},
			{Key: "content-type", Value: []byte(env.DataContentType)},
		},
		Time: env.Time,
	}

	if env.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-correlationid", Value: []byte(env.CorrelationID)})
	}
	if env.StoreID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-storeid", Value: []byte(env.StoreID)})
	}
	if env.OrderID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-orderid", Value: []byte(env.OrderID)})
	}

	writer := p.getWriter(topic)
	start := time.Now()
	err = writer.WriteMessages(ctx, msg)
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, env.Type, err == nil, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}

	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
