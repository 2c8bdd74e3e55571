package channel

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter implements Adapter for testing. It records published events
// and allows simulating inbound events via SimulateInbound. Two mock
// adapters can be linked with Pair so that events published on one side
// arrive on the other, letting a single test process drive both ends of a
// handshake.
type MockAdapter struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	inbound    chan Event
	published  []Event
	peer       *MockAdapter
	publishErr error // returned by Publish when set
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan Event, 100),
	}
}

// Pair links two mock adapters so each delivers published events to the
// other's inbound channel.
func Pair(a, b *MockAdapter) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

// Connect marks the adapter as connected.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound event channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Publish records the event and, if paired, delivers it to the peer.
func (m *MockAdapter) Publish(ctx context.Context, event Event) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return fmt.Errorf("mock adapter: not connected")
	}
	if m.publishErr != nil {
		err := m.publishErr
		m.mu.Unlock()
		return err
	}
	m.published = append(m.published, event)
	peer := m.peer
	m.mu.Unlock()

	if peer != nil {
		peer.deliver(event)
	}
	return nil
}

// deliver pushes an event into the inbound channel if still open.
func (m *MockAdapter) deliver(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.connected {
		return
	}
	m.inbound <- event
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound delivers an event as if it came from the transport.
// Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(event Event) {
	m.deliver(event)
}

// SetPublishError makes subsequent Publish calls fail with err, simulating
// a disconnected transport. Pass nil to restore normal behavior.
func (m *MockAdapter) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// LastPublished returns the most recently published event.
// Returns zero value and false if nothing has been published.
func (m *MockAdapter) LastPublished() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return Event{}, false
	}
	return m.published[len(m.published)-1], true
}

// PublishedCount returns the number of events published.
func (m *MockAdapter) PublishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// AllPublished returns a copy of all published events.
func (m *MockAdapter) AllPublished() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.published))
	copy(out, m.published)
	return out
}
