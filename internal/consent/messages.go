// Package consent implements the mutual-consent handshake two participants
// use to agree on ending a live consultation session. Each client runs an
// identical copy of the state machine; the only shared resource is the
// real-time channel between them.
package consent

import (
	"strings"

	"github.com/sozodigi/telecare/internal/channel"
)

// Channel event names for the end-of-session handshake.
const (
	EventEndSessionRequest   = "end-session-request"
	EventEndSessionConsent   = "end-session-consent"
	EventEndSessionRejected  = "end-session-rejected"
	EventEndSessionCancelled = "end-session-cancelled"
	EventSessionEnded        = "session-ended"
)

// Participant roles.
const (
	RolePatient    = "user"
	RoleSpecialist = "specialist"
)

// Participant identifies one side of a session.
type Participant struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// DisplayName returns the participant's full name.
func (p Participant) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// SessionContext is the locally held view of the live session a
// coordinator operates on.
type SessionContext struct {
	SessionID     string
	AppointmentID string
	Local         Participant
	Remote        Participant
}

// EndRequest proposes ending the session. It is published by the
// requesting side and surfaced as a consent prompt on the other side.
type EndRequest struct {
	SessionID     string `json:"sessionId"`
	AppointmentID string `json:"appointmentId"`
	RequesterID   string `json:"requesterId"`
	RequesterName string `json:"requesterName"`
	RequesterRole string `json:"requesterRole"`
	TargetID      string `json:"targetId"`
}

// EndConsent accepts a pending EndRequest.
type EndConsent struct {
	SessionID     string `json:"sessionId"`
	AppointmentID string `json:"appointmentId"`
	RequesterID   string `json:"requesterId"`
	AccepterID    string `json:"accepterId"`
}

// EndRejected declines a pending EndRequest.
type EndRejected struct {
	SessionID     string `json:"sessionId"`
	AppointmentID string `json:"appointmentId"`
	RequesterID   string `json:"requesterId"`
	RejecterID    string `json:"rejecterId"`
	RejecterName  string `json:"rejecterName"`
}

// EndCancelled withdraws a pending EndRequest before the other side has
// answered, so the remote consent prompt can be dismissed.
type EndCancelled struct {
	SessionID     string `json:"sessionId"`
	AppointmentID string `json:"appointmentId"`
	RequesterID   string `json:"requesterId"`
}

// SessionEnded is the generic broadcast that a session has been terminated.
// It is not part of the consent handshake: finalization publishes it so the
// other side learns the session is over even without a prior request.
type SessionEnded struct {
	Specialist    Participant `json:"specialist"`
	AppointmentID string      `json:"appointmentId"`
}

// mustEvent builds a channel event from a payload that is known to marshal.
func mustEvent(name string, v any) channel.Event {
	ev, err := channel.NewEvent(name, v)
	if err != nil {
		// All handshake payloads are plain structs; marshaling cannot fail.
		panic(err)
	}
	return ev
}
