package outbox

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/commerce-platform/fulfillment/pkg/events"
)

// Event is a pending domain event persisted in the same transaction as the
// aggregate change that produced it. A poller publishes it to Kafka later.
type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	EventID     string             `bson:"eventId"`
	EventType   string             `bson:"eventType"`
	Source      string             `bson:"source"`
	Subject     string             `bson:"subject"`
	Topic       string             `bson:"topic"`
	Payload     []byte             `bson:"payload"`
	CreatedAt   time.Time          `bson:"createdAt"`
	PublishedAt *time.Time         `bson:"publishedAt,omitempty"`
	RetryCount  int                `bson:"retryCount"`
	LastError   string             `bson:"lastError,omitempty"`

	CorrelationID string `bson:"correlationId,omitempty"`
	StoreID       string `bson:"storeId,omitempty"`
	OrderID       string `bson:"orderId,omitempty"`
}

// FromEnvelope converts an event envelope into an outbox record bound for topic
func FromEnvelope(env *events.Envelope, topic string) *Event {
	return &Event{
		EventID:       env.ID,
		EventType:     env.Type,
		Source:        env.Source,
		Subject:       env.Subject,
		Topic:         topic,
		Payload:       env.Data,
		CreatedAt:     env.Time,
		CorrelationID: env.CorrelationID,
		StoreID:       env.StoreID,
		OrderID:       env.OrderID,
	}
}

// ToEnvelope reconstructs the envelope for publishing
func (e *Event) ToEnvelope() *events.Envelope {
	return &events.Envelope{
		SpecVersion:     "1.0",
		Type:            e.EventType,
		Source:          e.Source,
		Subject:         e.Subject,
		ID:              e.EventID,
		Time:            e.CreatedAt,
		DataContentType: "application/json",
		Data:            json.RawMessage(e.Payload),
		CorrelationID:   e.CorrelationID,
		StoreID:         e.StoreID,
		OrderID:         e.OrderID,
	}
}
