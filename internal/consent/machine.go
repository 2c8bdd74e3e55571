package consent

import (
	"fmt"

	"github.com/sozodigi/telecare/internal/channel"
)

// State is the coordinator's position in the termination handshake.
type State string

const (
	// StateIdle means no termination request is outstanding.
	StateIdle State = "idle"
	// StateAwaitingRemoteConsent means this participant sent a request and
	// is waiting for the other side to answer.
	StateAwaitingRemoteConsent State = "awaiting-remote-consent"
	// StateAwaitingLocalConsent means the other side sent a request and
	// this user's decision is pending.
	StateAwaitingLocalConsent State = "awaiting-local-consent"
	// StateFinalizing is terminal and irreversible: finalization has begun.
	StateFinalizing State = "finalizing"
	// StateEnded means finalization has completed.
	StateEnded State = "ended"
)

// EffectKind enumerates the side effects a transition asks its caller to
// perform. The machine itself performs none of them.
type EffectKind int

const (
	// EffectPublish publishes Event on the channel.
	EffectPublish EffectKind = iota
	// EffectPromptConsent surfaces the consent prompt for Request.
	EffectPromptConsent
	// EffectDismissPrompt dismisses an open consent prompt.
	EffectDismissPrompt
	// EffectNotify surfaces Notice to the user.
	EffectNotify
	// EffectFinalize runs the finalization routine.
	EffectFinalize
	// EffectStartTimeout arms the awaiting-remote-consent timeout.
	EffectStartTimeout
	// EffectStopTimeout disarms it.
	EffectStopTimeout
)

// Notice is a toast-style message for the user.
type Notice struct {
	Text  string
	Level string // "info", "success", "error"
}

// Effect is one side effect requested by a transition.
type Effect struct {
	Kind    EffectKind
	Event   channel.Event // EffectPublish
	Request EndRequest    // EffectPromptConsent
	Notice  Notice        // EffectNotify
}

// Machine is the pure termination state machine for one participant.
// It holds no transport, no clocks and no locks: every input returns the
// effects the caller must execute, so both sides of the handshake can be
// driven in a single test without a network.
type Machine struct {
	session SessionContext
	state   State
	pending *EndRequest // outstanding request, ours or theirs
}

// NewMachine creates a Machine in StateIdle for the given session.
func NewMachine(session SessionContext) (*Machine, error) {
	if session.SessionID == "" {
		return nil, fmt.Errorf("consent: session ID is required")
	}
	if session.AppointmentID == "" {
		return nil, fmt.Errorf("consent: appointment ID is required")
	}
	if session.Local.ID == "" || session.Remote.ID == "" {
		return nil, fmt.Errorf("consent: both participant IDs are required")
	}
	return &Machine{session: session, state: StateIdle}, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Session returns the session context the machine operates on.
func (m *Machine) Session() SessionContext { return m.session }

// Pending returns the outstanding request, if any.
func (m *Machine) Pending() *EndRequest { return m.pending }

// RequestEnd proposes ending the session. Valid only in StateIdle.
func (m *Machine) RequestEnd() ([]Effect, error) {
	if m.state != StateIdle {
		return nil, fmt.Errorf("consent: cannot request end in state %q", m.state)
	}

	req := EndRequest{
		SessionID:     m.session.SessionID,
		AppointmentID: m.session.AppointmentID,
		RequesterID:   m.session.Local.ID,
		RequesterName: m.session.Local.DisplayName(),
		RequesterRole: m.session.Local.Role,
		TargetID:      m.session.Remote.ID,
	}
	m.state = StateAwaitingRemoteConsent
	m.pending = &req

	return []Effect{
		{Kind: EffectPublish, Event: mustEvent(EventEndSessionRequest, req)},
		{Kind: EffectStartTimeout},
		{Kind: EffectNotify, Notice: Notice{Text: "End session request sent. Waiting for consent...", Level: "info"}},
	}, nil
}

// CancelRequest withdraws this participant's outstanding request and tells
// the other side so its consent prompt can be dismissed.
func (m *Machine) CancelRequest() ([]Effect, error) {
	if m.state != StateAwaitingRemoteConsent {
		return nil, fmt.Errorf("consent: no outgoing request to cancel in state %q", m.state)
	}

	cancelled := EndCancelled{
		SessionID:     m.session.SessionID,
		AppointmentID: m.session.AppointmentID,
		RequesterID:   m.session.Local.ID,
	}
	m.state = StateIdle
	m.pending = nil

	return []Effect{
		{Kind: EffectStopTimeout},
		{Kind: EffectPublish, Event: mustEvent(EventEndSessionCancelled, cancelled)},
		{Kind: EffectNotify, Notice: Notice{Text: "End session request cancelled", Level: "info"}},
	}, nil
}

// AbortRequest resets an outgoing request without publishing anything.
// Used when publishing the request itself failed, so the remote side never
// saw it.
func (m *Machine) AbortRequest() {
	if m.state != StateAwaitingRemoteConsent {
		return
	}
	m.state = StateIdle
	m.pending = nil
}

// Accept agrees to the remote side's outstanding request: publish consent,
// then finalize locally.
func (m *Machine) Accept() ([]Effect, error) {
	if m.state != StateAwaitingLocalConsent || m.pending == nil {
		return nil, fmt.Errorf("consent: no incoming request to accept in state %q", m.state)
	}

	c := EndConsent{
		SessionID:     m.pending.SessionID,
		AppointmentID: m.pending.AppointmentID,
		RequesterID:   m.pending.RequesterID,
		AccepterID:    m.session.Local.ID,
	}
	m.state = StateFinalizing
	m.pending = nil

	return []Effect{
		{Kind: EffectPublish, Event: mustEvent(EventEndSessionConsent, c)},
		{Kind: EffectFinalize},
	}, nil
}

// Reject declines the remote side's outstanding request. The session
// continues unchanged.
func (m *Machine) Reject() ([]Effect, error) {
	if m.state != StateAwaitingLocalConsent || m.pending == nil {
		return nil, fmt.Errorf("consent: no incoming request to reject in state %q", m.state)
	}

	r := EndRejected{
		SessionID:     m.pending.SessionID,
		AppointmentID: m.pending.AppointmentID,
		RequesterID:   m.pending.RequesterID,
		RejecterID:    m.session.Local.ID,
		RejecterName:  m.session.Local.DisplayName(),
	}
	m.state = StateIdle
	m.pending = nil

	return []Effect{
		{Kind: EffectPublish, Event: mustEvent(EventEndSessionRejected, r)},
		{Kind: EffectNotify, Notice: Notice{Text: "End session request rejected", Level: "info"}},
	}, nil
}

// RequestTimedOut expires an outgoing request that was never answered.
func (m *Machine) RequestTimedOut() []Effect {
	if m.state != StateAwaitingRemoteConsent {
		return nil
	}
	m.state = StateIdle
	m.pending = nil
	return []Effect{
		{Kind: EffectNotify, Notice: Notice{Text: "End session request expired", Level: "info"}},
	}
}

// ForceFinalize enters finalization without consent, for timer expiry.
// Any outstanding request is discarded. Duplicate calls are no-ops.
func (m *Machine) ForceFinalize() []Effect {
	if m.state == StateFinalizing || m.state == StateEnded {
		return nil
	}
	effects := []Effect{{Kind: EffectStopTimeout}}
	if m.state == StateAwaitingLocalConsent {
		effects = append(effects, Effect{Kind: EffectDismissPrompt})
	}
	m.state = StateFinalizing
	m.pending = nil
	return append(effects, Effect{Kind: EffectFinalize})
}

// Finalized marks the session ended. Called once finalization completes.
func (m *Machine) Finalized() {
	if m.state == StateFinalizing {
		m.state = StateEnded
	}
}

// HandleEvent applies an inbound channel event. Events for a different
// session, or arriving in a state where they have no meaning, are ignored
// without any transition. Expected noise on a reused channel.
func (m *Machine) HandleEvent(ev channel.Event) []Effect {
	switch ev.Name {
	case EventEndSessionRequest:
		var req EndRequest
		if err := ev.Decode(&req); err != nil {
			return nil
		}
		return m.handleRequest(req)

	case EventEndSessionConsent:
		var c EndConsent
		if err := ev.Decode(&c); err != nil {
			return nil
		}
		return m.handleConsent(c)

	case EventEndSessionRejected:
		var r EndRejected
		if err := ev.Decode(&r); err != nil {
			return nil
		}
		return m.handleRejected(r)

	case EventEndSessionCancelled:
		var c EndCancelled
		if err := ev.Decode(&c); err != nil {
			return nil
		}
		return m.handleCancelled(c)

	case EventSessionEnded:
		var s SessionEnded
		if err := ev.Decode(&s); err != nil {
			return nil
		}
		return m.handleSessionEnded(s)
	}
	return nil
}

func (m *Machine) handleRequest(req EndRequest) []Effect {
	if req.SessionID != m.session.SessionID {
		return nil
	}

	switch m.state {
	case StateIdle:
		m.state = StateAwaitingLocalConsent
		m.pending = &req
		return []Effect{{Kind: EffectPromptConsent, Request: req}}

	case StateAwaitingRemoteConsent:
		// Both sides requested at once. Deterministic tie-break: the
		// request from the lower participant ID wins on both sides.
		if m.session.Local.ID < req.RequesterID {
			return nil // our request stands; the remote side yields
		}
		m.state = StateAwaitingLocalConsent
		m.pending = &req
		return []Effect{
			{Kind: EffectStopTimeout},
			{Kind: EffectPromptConsent, Request: req},
		}
	}
	return nil
}

func (m *Machine) handleConsent(c EndConsent) []Effect {
	if c.SessionID != m.session.SessionID {
		return nil
	}
	if m.state != StateAwaitingRemoteConsent || c.RequesterID != m.session.Local.ID {
		return nil
	}

	m.state = StateFinalizing
	m.pending = nil
	return []Effect{
		{Kind: EffectStopTimeout},
		{Kind: EffectNotify, Notice: Notice{Text: "Request accepted. Ending session...", Level: "success"}},
		{Kind: EffectFinalize},
	}
}

func (m *Machine) handleRejected(r EndRejected) []Effect {
	if r.SessionID != m.session.SessionID {
		return nil
	}
	if m.state != StateAwaitingRemoteConsent || r.RequesterID != m.session.Local.ID {
		return nil
	}

	m.state = StateIdle
	m.pending = nil
	return []Effect{
		{Kind: EffectStopTimeout},
		{Kind: EffectNotify, Notice: Notice{
			Text:  fmt.Sprintf("%s rejected the end session request", r.RejecterName),
			Level: "error",
		}},
	}
}

func (m *Machine) handleCancelled(c EndCancelled) []Effect {
	if c.SessionID != m.session.SessionID {
		return nil
	}
	if m.state != StateAwaitingLocalConsent || m.pending == nil || m.pending.RequesterID != c.RequesterID {
		return nil
	}

	m.state = StateIdle
	m.pending = nil
	return []Effect{
		{Kind: EffectDismissPrompt},
		{Kind: EffectNotify, Notice: Notice{Text: "End session request was cancelled", Level: "info"}},
	}
}

func (m *Machine) handleSessionEnded(s SessionEnded) []Effect {
	// The generic broadcast is matched on appointment ID, and the acting
	// party must be the expected counterpart.
	if s.AppointmentID != m.session.AppointmentID {
		return nil
	}
	if s.Specialist.ID != m.session.Remote.ID {
		return nil
	}
	if m.state == StateFinalizing || m.state == StateEnded {
		return nil
	}

	text := "Specialist has ended the session"
	if s.Specialist.Role == RolePatient {
		text = "Patient has ended the session"
	}

	effects := []Effect{{Kind: EffectStopTimeout}}
	if m.state == StateAwaitingLocalConsent {
		effects = append(effects, Effect{Kind: EffectDismissPrompt})
	}
	m.state = StateFinalizing
	m.pending = nil
	return append(effects,
		Effect{Kind: EffectNotify, Notice: Notice{Text: text, Level: "info"}},
		Effect{Kind: EffectFinalize},
	)
}
