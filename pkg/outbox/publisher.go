package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/commerce-platform/fulfillment/pkg/events"
	"github.com/commerce-platform/fulfillment/pkg/metrics"
)

// Producer is the transport the publisher drains events into
type Producer interface {
	PublishEnvelope(ctx context.Context, topic string, env *events.Envelope) error
}

// PublisherConfig holds publisher settings
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig returns sensible defaults
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    100,
	}
}

// Publisher polls the outbox and publishes pending events to Kafka.
// Publishing is at-least-once: a crash between publish and MarkPublished
// produces a duplicate, which downstream handlers deduplicate.
type Publisher struct {
	repo      Repository
	producer  Producer
	config    PublisherConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewPublisher creates a new outbox publisher. A nil metrics instance
// disables drain instrumentation.
func NewPublisher(repo Repository, producer Producer, config PublisherConfig, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		repo:      repo,
		producer:  producer,
		config:    config,
		metrics:   m,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins polling in a background goroutine
func (p *Publisher) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop signals the publisher to stop and waits for the current batch to finish
func (p *Publisher) Stop() {
	close(p.stopCh)
	<-p.stoppedCh
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Outbox publisher started",
		"pollInterval", p.config.PollInterval.String(),
		"batchSize", p.config.BatchSize,
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox publisher stopping", "reason", "context cancelled")
			return
		case <-p.stopCh:
			p.logger.Info("Outbox publisher stopping", "reason", "stop requested")
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil {
				p.logger.Error("Outbox batch failed", "error", err)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) error {
	pending, err := p.repo.FindUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.SetOutboxPending(len(pending))
	}
	if len(pending) == 0 {
		return nil
	}

	published := 0
	for _, evt := range pending {
		err := p.producer.PublishEnvelope(ctx, evt.Topic, evt.ToEnvelope())
		if p.metrics != nil {
			p.metrics.RecordOutboxPublish(evt.EventType, err == nil)
		}
		if err != nil {
			p.logger.Error("Failed to publish outbox event",
				"eventId", evt.EventID,
				"eventType", evt.EventType,
				"topic", evt.Topic,
				"retryCount", evt.RetryCount,
				"error", err,
			)
			if retryErr := p.repo.IncrementRetry(ctx, evt.EventID, err.Error()); retryErr != nil {
				p.logger.Error("Failed to record retry", "eventId", evt.EventID, "error", retryErr)
			}
			continue
		}

		if err := p.repo.MarkPublished(ctx, evt.EventID); err != nil {
			p.logger.Error("Failed to mark event published", "eventId", evt.EventID, "error", err)
			continue
		}
		published++
	}

	if published > 0 {
		p.logger.Debug("Outbox batch published", "published", published, "pending", len(pending))
	}
	return nil
}
