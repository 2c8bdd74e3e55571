package channel

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout bounds a single frame write to the relay.
	writeTimeout = 10 * time.Second
	// closeGrace is how long Close waits for the relay to acknowledge.
	closeGrace = time.Second
)

// WSAdapter implements Adapter over a websocket connection to the relay
// server. Frames are Event structs encoded as JSON.
type WSAdapter struct {
	endpoint string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	inbound   chan Event
}

// WSOpts holds parameters for creating a WSAdapter.
type WSOpts struct {
	// RelayURL is the base websocket URL of the relay, e.g. ws://host:4000.
	RelayURL string
	// Room is the session room to join (the session ID).
	Room string
	// UserID, UserName and Role identify this participant to the relay.
	UserID   string
	UserName string
	Role     string
}

// NewWSAdapter creates a websocket adapter for one session room.
func NewWSAdapter(opts WSOpts) (*WSAdapter, error) {
	if opts.RelayURL == "" {
		return nil, fmt.Errorf("channel: relay URL is required")
	}
	if opts.Room == "" {
		return nil, fmt.Errorf("channel: room is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("channel: user ID is required")
	}

	u, err := url.Parse(opts.RelayURL)
	if err != nil {
		return nil, fmt.Errorf("channel: parse relay URL %q: %w", opts.RelayURL, err)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("room", opts.Room)
	q.Set("userId", opts.UserID)
	q.Set("userName", opts.UserName)
	q.Set("role", opts.Role)
	u.RawQuery = q.Encode()

	return &WSAdapter{
		endpoint: u.String(),
		inbound:  make(chan Event, 100),
	}, nil
}

// Connect dials the relay server.
func (a *WSAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("channel: adapter already closed")
	}
	if a.connected {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.endpoint, nil)
	if err != nil {
		return fmt.Errorf("channel: dial relay %s: %w", a.endpoint, err)
	}
	a.conn = conn
	a.connected = true
	return nil
}

// Listen starts the read pump and returns the inbound event channel.
func (a *WSAdapter) Listen(ctx context.Context) (<-chan Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("channel: not connected")
	}

	go a.readPump(ctx)
	return a.inbound, nil
}

// readPump reads frames from the connection until it fails or the context
// is cancelled, then closes the inbound channel.
func (a *WSAdapter) readPump(ctx context.Context) {
	defer close(a.inbound)

	for {
		var ev Event
		if err := a.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("channel: read: %v", err)
			}
			return
		}
		select {
		case a.inbound <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Publish writes an event frame to the relay.
func (a *WSAdapter) Publish(ctx context.Context, event Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("channel: not connected")
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	a.conn.SetWriteDeadline(deadline)
	if err := a.conn.WriteJSON(event); err != nil {
		return fmt.Errorf("channel: publish %s: %w", event.Name, err)
	}
	return nil
}

// Close sends a close frame and tears down the connection.
func (a *WSAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if !a.connected {
		return nil
	}
	a.connected = false

	a.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	if err := a.conn.Close(); err != nil {
		return fmt.Errorf("channel: close: %w", err)
	}
	return nil
}
