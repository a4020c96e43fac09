package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope written to every topic. Key doubles as the Kafka
// message key, so events sharing a key land on one partition in order.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Key           string          `json:"key"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// EventOption customizes an Event built by NewEvent.
type EventOption func(*Event)

// WithID replaces the generated event id. Consumers deduplicate on it.
func WithID(id string) EventOption {
	return func(e *Event) {
		if id != "" {
			e.ID = id
		}
	}
}

// WithCorrelationID tags the event with the request that caused it.
func WithCorrelationID(id string) EventOption {
	return func(e *Event) { e.CorrelationID = id }
}

// NewEvent encodes payload into a fresh envelope.
func NewEvent(eventType, key, source string, payload any, opts ...EventOption) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	e := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		Source:     source,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Encode returns the wire form of the envelope.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals the payload into target.
func (e *Event) Decode(target any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	return json.Unmarshal(e.Payload, target)
}

// DecodeEvent parses an envelope from a message value.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}
