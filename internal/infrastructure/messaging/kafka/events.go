package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/pkg/errors"
)

// Event types.
const (
	EventTypeRunCompleted = "run.completed"

	eventSource   = "kgeval"
	schemaVersion = "v1"
)

// EventEnvelope wraps every payload published by kgeval.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEventEnvelope marshals payload into a fresh envelope.
func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       data,
	}, nil
}

// NewRunCompletedEvent wraps rec.
func NewRunCompletedEvent(rec *run.Record) (*EventEnvelope, error) {
	env, err := NewEventEnvelope(EventTypeRunCompleted, rec)
	if err != nil {
		return nil, err
	}
	env.Metadata = map[string]string{"dataset": rec.Dataset, "net_name": rec.NetName}
	return env, nil
}

// DecodePayload unmarshals the payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeSerialization, "event has no payload").WithDetail(e.EventID)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload").WithDetail(e.EventID)
	}
	return nil
}

// DecodeEnvelope parses a message value.
func DecodeEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}
