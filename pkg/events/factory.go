package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Factory creates envelopes for domain events from a fixed source
type Factory struct {
	source string
}

// NewFactory creates a new event Factory for a specific source
func NewFactory(source string) *Factory {
	return &Factory{source: source}
}

// Wrap builds an envelope around a domain event
func (f *Factory) Wrap(subject string, event DomainEvent) (*Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event.EventType(), err)
	}

	return &Envelope{
		SpecVersion:     "1.0",
		Type:            event.EventType(),
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}, nil
}

// WrapWithCorrelation builds an envelope carrying correlation extensions
func (f *Factory) WrapWithCorrelation(subject string, event DomainEvent, correlationID, storeID, orderID string) (*Envelope, error) {
	env, err := f.Wrap(subject, event)
	if err != nil {
		return nil, err
	}
	env.CorrelationID = correlationID
	env.StoreID = storeID
	env.OrderID = orderID
	return env, nil
}
