// Package events carries structured lifecycle notifications from the marker
// engine to telemetry consumers: the process log, a Redis stream, an MQTT
// broker and WebSocket subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is one structured notification. Data holds the event-specific
// payload as raw JSON.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	Tenant     string          `json:"tenant,omitempty"`
	PatientID  string          `json:"patient_id,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
	ActingUser string          `json:"acting_user,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New stamps an event with an id and the current time. A payload that
// cannot be marshalled is dropped rather than failing the caller.
func New(typ, topic string, payload interface{}) Event {
	e := Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			e.Data = b
		}
	}
	return e
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Multi fans an event out to every sink and joins their errors. A failing
// sink does not stop delivery to the others.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
