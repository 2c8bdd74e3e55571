package consent

import (
	"strings"
	"testing"

	"github.com/sozodigi/telecare/internal/channel"
)

func patientSession() SessionContext {
	return SessionContext{
		SessionID:     "sess-1",
		AppointmentID: "apt-1",
		Local:         Participant{ID: "pat-1", FirstName: "Ngozi", LastName: "Eze", Role: RolePatient},
		Remote:        Participant{ID: "spec-1", FirstName: "Ada", LastName: "Obi", Role: RoleSpecialist},
	}
}

func specialistSession() SessionContext {
	s := patientSession()
	s.Local, s.Remote = s.Remote, s.Local
	return s
}

func newTestMachine(t *testing.T, s SessionContext) *Machine {
	t.Helper()
	m, err := NewMachine(s)
	if err != nil {
		t.Fatalf("NewMachine() error: %v", err)
	}
	return m
}

func findEffect(effects []Effect, kind EffectKind) (Effect, bool) {
	for _, e := range effects {
		if e.Kind == kind {
			return e, true
		}
	}
	return Effect{}, false
}

func hasEffect(effects []Effect, kind EffectKind) bool {
	_, ok := findEffect(effects, kind)
	return ok
}

func TestNewMachine_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SessionContext)
	}{
		{"missing session ID", func(s *SessionContext) { s.SessionID = "" }},
		{"missing appointment ID", func(s *SessionContext) { s.AppointmentID = "" }},
		{"missing local ID", func(s *SessionContext) { s.Local.ID = "" }},
		{"missing remote ID", func(s *SessionContext) { s.Remote.ID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := patientSession()
			tt.mutate(&s)
			if _, err := NewMachine(s); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRequestEnd_EmitsRequestAndWaits(t *testing.T) {
	m := newTestMachine(t, patientSession())

	effects, err := m.RequestEnd()
	if err != nil {
		t.Fatalf("RequestEnd() error: %v", err)
	}
	if m.State() != StateAwaitingRemoteConsent {
		t.Errorf("state = %q, want %q", m.State(), StateAwaitingRemoteConsent)
	}

	pub, ok := findEffect(effects, EffectPublish)
	if !ok {
		t.Fatal("no publish effect")
	}
	if pub.Event.Name != EventEndSessionRequest {
		t.Errorf("published event = %q, want %q", pub.Event.Name, EventEndSessionRequest)
	}
	var req EndRequest
	if err := pub.Event.Decode(&req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.SessionID != "sess-1" || req.AppointmentID != "apt-1" {
		t.Errorf("request ids = %s/%s", req.SessionID, req.AppointmentID)
	}
	if req.RequesterID != "pat-1" || req.TargetID != "spec-1" {
		t.Errorf("request parties = %s→%s", req.RequesterID, req.TargetID)
	}
	if req.RequesterName != "Ngozi Eze" || req.RequesterRole != RolePatient {
		t.Errorf("requester identity = %q (%s)", req.RequesterName, req.RequesterRole)
	}
	if !hasEffect(effects, EffectStartTimeout) {
		t.Error("no start-timeout effect")
	}
	if !hasEffect(effects, EffectNotify) {
		t.Error("no notify effect")
	}
}

func TestRequestEnd_InvalidStates(t *testing.T) {
	m := newTestMachine(t, patientSession())
	if _, err := m.RequestEnd(); err != nil {
		t.Fatalf("first RequestEnd() error: %v", err)
	}
	if _, err := m.RequestEnd(); err == nil {
		t.Error("expected error requesting twice")
	}

	m2 := newTestMachine(t, patientSession())
	m2.ForceFinalize()
	if _, err := m2.RequestEnd(); err == nil {
		t.Error("expected error requesting while finalizing")
	}
}

func TestHandleRequest_PromptsLocalConsent(t *testing.T) {
	m := newTestMachine(t, specialistSession())

	req := EndRequest{
		SessionID:     "sess-1",
		AppointmentID: "apt-1",
		RequesterID:   "pat-1",
		RequesterName: "Ngozi Eze",
		RequesterRole: RolePatient,
		TargetID:      "spec-1",
	}
	effects := m.HandleEvent(mustEvent(EventEndSessionRequest, req))

	if m.State() != StateAwaitingLocalConsent {
		t.Errorf("state = %q, want %q", m.State(), StateAwaitingLocalConsent)
	}
	prompt, ok := findEffect(effects, EffectPromptConsent)
	if !ok {
		t.Fatal("no prompt effect")
	}
	if prompt.Request.RequesterName != "Ngozi Eze" {
		t.Errorf("prompt requester = %q", prompt.Request.RequesterName)
	}
	if m.Pending() == nil || m.Pending().RequesterID != "pat-1" {
		t.Errorf("pending = %+v", m.Pending())
	}
}

func TestHandleEvent_StaleSessionIgnored(t *testing.T) {
	// An inbound message whose sessionId does not match the local session
	// must cause no transition at all.
	tests := []struct {
		name  string
		event channel.Event
	}{
		{"stale request", mustEvent(EventEndSessionRequest, EndRequest{SessionID: "other", RequesterID: "pat-1"})},
		{"stale consent", mustEvent(EventEndSessionConsent, EndConsent{SessionID: "other", RequesterID: "spec-1"})},
		{"stale rejection", mustEvent(EventEndSessionRejected, EndRejected{SessionID: "other", RequesterID: "spec-1"})},
		{"stale cancellation", mustEvent(EventEndSessionCancelled, EndCancelled{SessionID: "other", RequesterID: "pat-1"})},
		{"unknown event", channel.Event{Name: "typing-indicator"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(t, specialistSession())
			if _, err := m.RequestEnd(); err != nil {
				t.Fatalf("RequestEnd() error: %v", err)
			}
			if effects := m.HandleEvent(tt.event); effects != nil {
				t.Errorf("effects = %+v, want none", effects)
			}
			if m.State() != StateAwaitingRemoteConsent {
				t.Errorf("state = %q, want unchanged", m.State())
			}
		})
	}
}

func TestAccept_PublishesConsentAndFinalizes(t *testing.T) {
	m := newTestMachine(t, specialistSession())
	m.HandleEvent(mustEvent(EventEndSessionRequest, EndRequest{
		SessionID: "sess-1", AppointmentID: "apt-1", RequesterID: "pat-1", TargetID: "spec-1",
	}))

	effects, err := m.Accept()
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	if m.State() != StateFinalizing {
		t.Errorf("state = %q, want %q", m.State(), StateFinalizing)
	}
	pub, ok := findEffect(effects, EffectPublish)
	if !ok || pub.Event.Name != EventEndSessionConsent {
		t.Fatalf("publish = %+v, want %s", pub, EventEndSessionConsent)
	}
	var c EndConsent
	if err := pub.Event.Decode(&c); err != nil {
		t.Fatalf("decode consent: %v", err)
	}
	if c.RequesterID != "pat-1" || c.AccepterID != "spec-1" {
		t.Errorf("consent parties = %s/%s", c.RequesterID, c.AccepterID)
	}
	if !hasEffect(effects, EffectFinalize) {
		t.Error("no finalize effect")
	}
}

func TestReject_ReturnsToIdle(t *testing.T) {
	m := newTestMachine(t, specialistSession())
	m.HandleEvent(mustEvent(EventEndSessionRequest, EndRequest{
		SessionID: "sess-1", AppointmentID: "apt-1", RequesterID: "pat-1", TargetID: "spec-1",
	}))

	effects, err := m.Reject()
	if err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
	pub, ok := findEffect(effects, EffectPublish)
	if !ok || pub.Event.Name != EventEndSessionRejected {
		t.Fatalf("publish = %+v, want %s", pub, EventEndSessionRejected)
	}
	var r EndRejected
	if err := pub.Event.Decode(&r); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if r.RejecterID != "spec-1" || r.RejecterName != "Ada Obi" {
		t.Errorf("rejecter = %s (%s)", r.RejecterID, r.RejecterName)
	}
}

func TestHandleConsent_FinalizesRequester(t *testing.T) {
	m := newTestMachine(t, patientSession())
	if _, err := m.RequestEnd(); err != nil {
		t.Fatalf("RequestEnd() error: %v", err)
	}

	effects := m.HandleEvent(mustEvent(EventEndSessionConsent, EndConsent{
		SessionID: "sess-1", AppointmentID: "apt-1", RequesterID: "pat-1", AccepterID: "spec-1",
	}))
	if m.State() != StateFinalizing {
		t.Errorf("state = %q, want finalizing", m.State())
	}
	if !hasEffect(effects, EffectFinalize) {
		t.Error("no finalize effect")
	}
	if !hasEffect(effects, EffectStopTimeout) {
		t.Error("no stop-timeout effect")
	}
}

func TestHandleConsent_IgnoredWhenNotRequester(t *testing.T) {
	m := newTestMachine(t, patientSession())
	effects := m.HandleEvent(mustEvent(EventEndSessionConsent, EndConsent{
		SessionID: "sess-1", RequesterID: "pat-1", AccepterID: "spec-1",
	}))
	if effects != nil {
		t.Errorf("effects in idle = %+v, want none", effects)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
}

func TestHandleRejected_SurfacesRejecterName(t *testing.T) {
	m := newTestMachine(t, patientSession())
	if _, err := m.RequestEnd(); err != nil {
		t.Fatalf("RequestEnd() error: %v", err)
	}

	effects := m.HandleEvent(mustEvent(EventEndSessionRejected, EndRejected{
		SessionID: "sess-1", AppointmentID: "apt-1",
		RequesterID: "pat-1", RejecterID: "spec-1", RejecterName: "Ada Obi",
	}))
	if m.State() != StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
	notice, ok := findEffect(effects, EffectNotify)
	if !ok {
		t.Fatal("no notify effect")
	}
	if !strings.Contains(notice.Notice.Text, "Ada Obi") {
		t.Errorf("notice %q does not name the rejecter", notice.Notice.Text)
	}
}

func TestCancelRequest_BroadcastsCancellation(t *testing.T) {
	m := newTestMachine(t, patientSession())
	if _, err := m.RequestEnd(); err != nil {
		t.Fatalf("RequestEnd() error: %v", err)
	}

	effects, err := m.CancelRequest()
	if err != nil {
		t.Fatalf("CancelRequest() error: %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
	pub, ok := findEffect(effects, EffectPublish)
	if !ok || pub.Event.Name != EventEndSessionCancelled {
		t.Fatalf("publish = %+v, want %s", pub, EventEndSessionCancelled)
	}
	if !hasEffect(effects, EffectStopTimeout) {
		t.Error("no stop-timeout effect")
	}
}

func TestHandleCancelled_DismissesPrompt(t *testing.T) {
	m := newTestMachine(t, specialistSession())
	m.HandleEvent(mustEvent(EventEndSessionRequest, EndRequest{
		SessionID: "sess-1", AppointmentID: "apt-1", RequesterID: "pat-1", TargetID: "spec-1",
	}))

	effects := m.HandleEvent(mustEvent(EventEndSessionCancelled, EndCancelled{
		SessionID: "sess-1", AppointmentID: "apt-1", RequesterID: "pat-1",
	}))
	if m.State() != StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
	if !hasEffect(effects, EffectDismissPrompt) {
		t.Error("no dismiss-prompt effect")
	}
}

func TestHandleCancelled_WrongRequesterIgnored(t *testing.T) {
	m := newTestMachine(t, specialistSession())
	m.HandleEvent(mustEvent(EventEndSessionRequest, EndRequest{
		SessionID: "sess-1", RequesterID: "pat-1", TargetID: "spec-1",
	}))

	effects := m.HandleEvent(mustEvent(EventEndSessionCancelled, EndCancelled{
		SessionID: "sess-1", RequesterID: "someone-else",
	}))
	if effects != nil {
		t.Errorf("effects = %+v, want none", effects)
	}
	if m.State() != StateAwaitingLocalConsent {
		t.Errorf("state = %q, want awaiting-local-consent", m.State())
	}
}

func TestRequestTimedOut(t *testing.T) {
	m := newTestMachine(t, patientSession())
	if effects := m.RequestTimedOut(); effects != nil {
		t.Errorf("timeout in idle produced effects: %+v", effects)
	}

	if _, err := m.RequestEnd(); err != nil {
		t.Fatalf("RequestEnd() error: %v", err)
	}
	effects := m.RequestTimedOut()
	if m.State() != StateIdle {
		t.Errorf("state = %q, want idle", m.State())
	}
	notice, ok := findEffect(effects, EffectNotify)
	if !ok || !strings.Contains(notice.Notice.Text, "expired") {
		t.Errorf("notice = %+v, want expiry message", notice)
	}
}

func TestSimultaneousRequests_TieBreakIsDeterministic(t *testing.T) {
	// Both sides request at once. The request from the lexicographically
	// lower participant ID must win on both sides: pat-1 < spec-1.
	patient := newTestMachine(t, patientSession())
	specialist := newTestMachine(t, specialistSession())

	patEffects, err := patient.RequestEnd()
	if err != nil {
		t.Fatalf("patient RequestEnd() error: %v", err)
	}
	specEffects, err := specialist.RequestEnd()
	if err != nil {
		t.Fatalf("specialist RequestEnd() error: %v", err)
	}

	patReq, _ := findEffect(patEffects, EffectPublish)
	specReq, _ := findEffect(specEffects, EffectPublish)

	// Each side now receives the other's request.
	if effects := patient.HandleEvent(specReq.Event); effects != nil {
		t.Errorf("patient (lower ID) yielded: %+v", effects)
	}
	if patient.State() != StateAwaitingRemoteConsent {
		t.Errorf("patient state = %q, want awaiting-remote-consent", patient.State())
	}

	effects := specialist.HandleEvent(patReq.Event)
	if specialist.State() != StateAwaitingLocalConsent {
		t.Errorf("specialist state = %q, want awaiting-local-consent", specialist.State())
	}
	if !hasEffect(effects, EffectPromptConsent) {
		t.Error("specialist did not prompt for the winning request")
	}
	if !hasEffect(effects, EffectStopTimeout) {
		t.Error("specialist did not drop its own request timeout")
	}
}

func TestForceFinalize_Idempotent(t *testing.T) {
	m := newTestMachine(t, patientSession())

	first := m.ForceFinalize()
	if !hasEffect(first, EffectFinalize) {
		t.Fatal("first ForceFinalize produced no finalize effect")
	}
	if m.State() != StateFinalizing {
		t.Errorf("state = %q, want finalizing", m.State())
	}
	if second := m.ForceFinalize(); second != nil {
		t.Errorf("second ForceFinalize produced effects: %+v", second)
	}

	m.Finalized()
	if m.State() != StateEnded {
		t.Errorf("state = %q, want ended", m.State())
	}
	if third := m.ForceFinalize(); third != nil {
		t.Errorf("ForceFinalize after ended produced effects: %+v", third)
	}
}

func TestForceFinalize_DiscardsOutstandingRequest(t *testing.T) {
	// Timer expiry preempts an in-flight request; a late answer is a no-op.
	m := newTestMachine(t, patientSession())
	if _, err := m.RequestEnd(); err != nil {
		t.Fatalf("RequestEnd() error: %v", err)
	}

	m.ForceFinalize()
	if m.Pending() != nil {
		t.Error("pending request survived forced finalization")
	}

	late := m.HandleEvent(mustEvent(EventEndSessionConsent, EndConsent{
		SessionID: "sess-1", RequesterID: "pat-1", AccepterID: "spec-1",
	}))
	if late != nil {
		t.Errorf("late consent produced effects: %+v", late)
	}
}

func TestHandleSessionEnded_Matching(t *testing.T) {
	ended := func(actorID, actorRole, appointmentID string) channel.Event {
		return mustEvent(EventSessionEnded, SessionEnded{
			Specialist:    Participant{ID: actorID, Role: actorRole},
			AppointmentID: appointmentID,
		})
	}

	t.Run("wrong appointment ignored", func(t *testing.T) {
		m := newTestMachine(t, patientSession())
		if effects := m.HandleEvent(ended("spec-1", RoleSpecialist, "apt-other")); effects != nil {
			t.Errorf("effects = %+v, want none", effects)
		}
	})

	t.Run("wrong actor ignored", func(t *testing.T) {
		m := newTestMachine(t, patientSession())
		if effects := m.HandleEvent(ended("intruder", RoleSpecialist, "apt-1")); effects != nil {
			t.Errorf("effects = %+v, want none", effects)
		}
	})

	t.Run("specialist ended, patient notified", func(t *testing.T) {
		m := newTestMachine(t, patientSession())
		effects := m.HandleEvent(ended("spec-1", RoleSpecialist, "apt-1"))
		notice, ok := findEffect(effects, EffectNotify)
		if !ok || notice.Notice.Text != "Specialist has ended the session" {
			t.Errorf("notice = %+v", notice)
		}
		if !hasEffect(effects, EffectFinalize) {
			t.Error("no finalize effect")
		}
		if m.State() != StateFinalizing {
			t.Errorf("state = %q, want finalizing", m.State())
		}
	})

	t.Run("patient ended, specialist notified", func(t *testing.T) {
		m := newTestMachine(t, specialistSession())
		effects := m.HandleEvent(ended("pat-1", RolePatient, "apt-1"))
		notice, ok := findEffect(effects, EffectNotify)
		if !ok || notice.Notice.Text != "Patient has ended the session" {
			t.Errorf("notice = %+v", notice)
		}
	})

	t.Run("ignored once finalizing", func(t *testing.T) {
		m := newTestMachine(t, patientSession())
		m.ForceFinalize()
		if effects := m.HandleEvent(ended("spec-1", RoleSpecialist, "apt-1")); effects != nil {
			t.Errorf("effects = %+v, want none", effects)
		}
	})
}

func TestParticipant_DisplayName(t *testing.T) {
	tests := []struct {
		p    Participant
		want string
	}{
		{Participant{FirstName: "Ada", LastName: "Obi"}, "Ada Obi"},
		{Participant{FirstName: "Ada"}, "Ada"},
		{Participant{}, ""},
	}
	for _, tt := range tests {
		if got := tt.p.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}
