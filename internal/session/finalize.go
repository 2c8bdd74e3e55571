// Package session provides the lifecycle of a live consultation: room
// creation and tokens, start-time persistence, scheduled expiry, and the
// one-time teardown that runs when a session ends.
package session

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/sozodigi/telecare/internal/channel"
	"github.com/sozodigi/telecare/internal/consent"
)

// Backend records the outcome of a finished consultation.
type Backend interface {
	CompleteAppointment(ctx context.Context, appointmentID string) error
	RecordSessionEnd(ctx context.Context, appointmentID string, endedAt time.Time, durationMin int) error
}

// MediaController tears down the local media connection.
type MediaController interface {
	EndCall()
}

// Navigator moves the client off the session screen.
type Navigator interface {
	GoToSummary(appointmentID string)
}

// DurationMinutes converts a session's elapsed time to whole minutes,
// rounding to nearest.
func DurationMinutes(startedAt, endedAt time.Time) int {
	return int(math.Round(endedAt.Sub(startedAt).Minutes()))
}

// Finalizer runs the one-time teardown of a session: announce the end on
// the channel, drop media, record the outcome, clear the resume entry and
// leave the session screen. Backend failures are logged, never fatal: the
// user must get out of the call regardless.
type Finalizer struct {
	mu   sync.Mutex
	done bool

	session consent.SessionContext
	adapter channel.Adapter
	backend Backend
	media   MediaController
	nav     Navigator
	cache   *ResumeCache
	now     func() time.Time
}

// FinalizerOpts holds parameters for creating a Finalizer.
type FinalizerOpts struct {
	Session consent.SessionContext
	Adapter channel.Adapter
	Backend Backend
	Media   MediaController
	Nav     Navigator
	Cache   *ResumeCache
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewFinalizer creates a Finalizer.
func NewFinalizer(opts FinalizerOpts) *Finalizer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Finalizer{
		session: opts.Session,
		adapter: opts.Adapter,
		backend: opts.Backend,
		media:   opts.Media,
		nav:     opts.Nav,
		cache:   opts.Cache,
		now:     now,
	}
}

// Finalize ends the session. Repeat calls are no-ops.
func (f *Finalizer) Finalize(ctx context.Context) error {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return nil
	}
	f.done = true
	f.mu.Unlock()

	apptID := f.session.AppointmentID

	// Announce first so the other side learns the session is over even if
	// everything after this fails.
	ended := consent.SessionEnded{
		Specialist:    f.session.Local,
		AppointmentID: apptID,
	}
	if ev, err := channel.NewEvent(consent.EventSessionEnded, ended); err == nil {
		if err := f.adapter.Publish(ctx, ev); err != nil {
			log.Printf("session: publish session-ended for %s: %v", apptID, err)
		}
	}

	if f.media != nil {
		f.media.EndCall()
	}

	endedAt := f.now()
	startedAt := endedAt
	if f.cache != nil {
		if t, ok := f.cache.Get(apptID); ok {
			startedAt = t
		}
	}
	durationMin := DurationMinutes(startedAt, endedAt)

	if f.backend != nil {
		if err := f.backend.CompleteAppointment(ctx, apptID); err != nil {
			log.Printf("session: complete appointment %s: %v", apptID, err)
		}
		if err := f.backend.RecordSessionEnd(ctx, apptID, endedAt, durationMin); err != nil {
			log.Printf("session: record end for %s: %v", apptID, err)
		}
	}

	if f.cache != nil {
		if err := f.cache.Clear(apptID); err != nil {
			log.Printf("session: clear resume entry for %s: %v", apptID, err)
		}
	}
	if f.nav != nil {
		f.nav.GoToSummary(apptID)
	}
	return nil
}
