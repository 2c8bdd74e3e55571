// Package channel provides the real-time message transport connecting the
// two participants of a consultation session.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event is one message on the channel: a named event plus a JSON payload.
// This is also the wire frame exchanged with the relay server.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals v into an Event payload.
func NewEvent(name string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("channel: marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Payload: data}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("channel: decode %s payload: %w", e.Name, err)
	}
	return nil
}

// Adapter is the interface that transport implementations must satisfy.
// An adapter is scoped to a single session room: events published on it
// reach only the other participant of that session, and Listen delivers
// only events addressed to this participant.
type Adapter interface {
	// Connect establishes the connection to the transport.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events. The channel is closed
	// when the context is cancelled or the adapter is closed. Listen must
	// only be called after Connect.
	Listen(ctx context.Context) (<-chan Event, error)

	// Publish delivers an event to the other participant.
	Publish(ctx context.Context, event Event) error

	// Close gracefully shuts down the connection.
	Close() error
}
