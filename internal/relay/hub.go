// Package relay implements the real-time message relay clients use during
// a consultation: room-scoped event fan-out plus specialist presence and
// call setup routing.
package relay

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/sozodigi/telecare/internal/channel"
)

// Routed event names the hub handles itself. Everything else is forwarded
// to the sender's room peer.
const (
	EventSpecialistOnline = "specialist-online"
	EventIncomingCall     = "incoming-call"
	EventAcceptCall       = "accept-call"
	EventRejectCall       = "reject-call"
	EventCallFailed       = "call-failed"
	EventSessionCreated   = "session-created"
)

// sendBuffer is the per-client outbound queue size. A client that falls
// this far behind starts losing events.
const sendBuffer = 32

// Client is one connected participant.
type Client struct {
	ID   string
	Name string
	Role string
	Room string

	send chan channel.Event
}

// NewClient creates a client for the hub. Room may be empty for clients
// that only wait for calls.
func NewClient(id, name, role, room string) *Client {
	return &Client{
		ID:   id,
		Name: name,
		Role: role,
		Room: room,
		send: make(chan channel.Event, sendBuffer),
	}
}

// Outbound returns the channel of events queued for this client.
func (c *Client) Outbound() <-chan channel.Event { return c.send }

// Hub routes events between connected clients. A consultation room holds
// at most the two participants of its session.
type Hub struct {
	mu sync.Mutex
	// rooms maps room name to its members.
	rooms map[string]map[*Client]bool
	// specialists maps user ID to the connection awaiting calls.
	specialists map[string]*Client
	// callers maps appointment ID to the client that placed the call, so
	// accept/reject can be routed back.
	callers map[string]*Client
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		specialists: make(map[string]*Client),
		callers:     make(map[string]*Client),
	}
}

// Register adds a client. Joining a full room returns false.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.Room != "" {
		members := h.rooms[c.Room]
		if len(members) >= 2 {
			return false
		}
		if members == nil {
			members = make(map[*Client]bool)
			h.rooms[c.Room] = members
		}
		members[c] = true
	}
	if c.Role == "specialist" {
		h.specialists[c.ID] = c
	}
	return true
}

// Unregister removes a client and releases its routing entries.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[c.Room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.Room)
		}
	}
	if h.specialists[c.ID] == c {
		delete(h.specialists, c.ID)
	}
	for apptID, caller := range h.callers {
		if caller == c {
			delete(h.callers, apptID)
		}
	}
	close(c.send)
}

// callPayload is the subset of call setup payloads the hub routes on.
type callPayload struct {
	SpecialistID  string `json:"specialistId"`
	AppointmentID string `json:"appointmentId"`
}

// Route handles one inbound event from a client.
func (h *Hub) Route(from *Client, ev channel.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev.Name {
	case EventSpecialistOnline:
		// Presence is implied by registration; the event refreshes it for
		// reconnecting clients.
		h.specialists[from.ID] = from

	case EventIncomingCall:
		var call callPayload
		if err := json.Unmarshal(ev.Payload, &call); err != nil {
			log.Printf("relay: bad incoming-call from %s: %v", from.ID, err)
			return
		}
		target, online := h.specialists[call.SpecialistID]
		if !online {
			h.trySend(from, mustRelayEvent(EventCallFailed, map[string]string{
				"appointmentId": call.AppointmentID,
				"reason":        "specialist-offline",
			}))
			return
		}
		h.callers[call.AppointmentID] = from
		h.trySend(target, ev)

	case EventAcceptCall, EventRejectCall:
		var call callPayload
		if err := json.Unmarshal(ev.Payload, &call); err != nil {
			log.Printf("relay: bad %s from %s: %v", ev.Name, from.ID, err)
			return
		}
		caller, ok := h.callers[call.AppointmentID]
		if !ok {
			return
		}
		delete(h.callers, call.AppointmentID)
		h.trySend(caller, ev)

	default:
		// Room events, session-created included, go to the sender's peer.
		for member := range h.rooms[from.Room] {
			if member != from {
				h.trySend(member, ev)
			}
		}
	}
}

// trySend queues an event without blocking; a full queue drops the event.
// Callers hold h.mu.
func (h *Hub) trySend(c *Client, ev channel.Event) {
	select {
	case c.send <- ev:
	default:
		log.Printf("relay: dropping %s for slow client %s", ev.Name, c.ID)
	}
}

// RoomSize reports how many clients a room currently holds.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// SpecialistOnline reports whether a specialist is connected.
func (h *Hub) SpecialistOnline(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.specialists[id]
	return ok
}

func mustRelayEvent(name string, v any) channel.Event {
	ev, err := channel.NewEvent(name, v)
	if err != nil {
		panic(err)
	}
	return ev
}
