package session

import (
	"sync"
	"time"
)

// ExpiryTimer fires once when a session's scheduled duration elapses.
// Arming replaces any previously armed expiry.
type ExpiryTimer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm schedules fn to run after d. A non-positive d fires immediately.
func (t *ExpiryTimer) Arm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	t.timer = time.AfterFunc(d, fn)
}

// Stop cancels a pending expiry. Safe to call when nothing is armed.
func (t *ExpiryTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Remaining returns how much of the scheduled duration is left for a
// session that started at startedAt. Resumed sessions keep their
// original elapsed time, so a long-expired session returns zero.
func Remaining(startedAt time.Time, duration time.Duration, now time.Time) time.Duration {
	left := duration - now.Sub(startedAt)
	if left < 0 {
		return 0
	}
	return left
}
