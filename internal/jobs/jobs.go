// Package jobs runs the platform's background maintenance: appointment
// reminders and the sweep that closes sessions left open after a crash
// or dropped connection.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sozodigi/telecare/internal/models"
	"gorm.io/gorm"
)

// ReminderWindow is how far ahead the reminder job looks.
const ReminderWindow = 30 * time.Minute

// DefaultStaleAfter is how long past its start a session may stay active
// before the sweep closes it.
const DefaultStaleAfter = 2 * time.Hour

// RunnerOpts holds configuration for the job runner.
type RunnerOpts struct {
	DB           *gorm.DB
	ReminderCron string
	SweepCron    string
	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration
	// Notify is called for each appointment due a reminder. Defaults to
	// logging.
	Notify func(models.Appointment)
}

// Runner drives the scheduled jobs.
type Runner struct {
	db           *gorm.DB
	reminderCron string
	sweepCron    string
	staleAfter   time.Duration
	notify       func(models.Appointment)
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOpts) (*Runner, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("jobs: db is required")
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	notify := opts.Notify
	if notify == nil {
		notify = func(appt models.Appointment) {
			log.Printf("jobs: reminder for appointment %s at %s", appt.ID, appt.ScheduledAt.Format(time.RFC3339))
		}
	}
	return &Runner{
		db:           opts.DB,
		reminderCron: opts.ReminderCron,
		sweepCron:    opts.SweepCron,
		staleAfter:   staleAfter,
		notify:       notify,
	}, nil
}

// Run fires the jobs on their cron schedules until ctx is cancelled.
// A job with an empty or invalid schedule never fires.
func (r *Runner) Run(ctx context.Context) {
	var reminderTimer, sweepTimer *time.Timer
	if r.reminderCron != "" {
		if d := nextCronDuration(r.reminderCron); d > 0 {
			reminderTimer = time.NewTimer(d)
		}
	}
	if r.sweepCron != "" {
		if d := nextCronDuration(r.sweepCron); d > 0 {
			sweepTimer = time.NewTimer(d)
		}
	}

	defer func() {
		if reminderTimer != nil {
			reminderTimer.Stop()
		}
		if sweepTimer != nil {
			sweepTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timerChan(reminderTimer):
			r.fireReminders(time.Now())
			if d := nextCronDuration(r.reminderCron); d > 0 {
				reminderTimer.Reset(d)
			}
		case <-timerChan(sweepTimer):
			if n, err := SweepStaleSessions(r.db, time.Now(), r.staleAfter); err != nil {
				log.Printf("jobs: sweep stale sessions: %v", err)
			} else if n > 0 {
				log.Printf("jobs: closed %d stale sessions", n)
			}
			if d := nextCronDuration(r.sweepCron); d > 0 {
				sweepTimer.Reset(d)
			}
		}
	}
}

// timerChan returns the timer's channel, or nil if the timer is nil.
// A nil channel blocks forever in select, which is the desired behavior
// for a disabled job.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (r *Runner) fireReminders(now time.Time) {
	due, err := UpcomingAppointments(r.db, now)
	if err != nil {
		log.Printf("jobs: upcoming appointments: %v", err)
		return
	}
	for _, appt := range due {
		r.notify(appt)
	}
}

// UpcomingAppointments returns confirmed appointments starting within the
// reminder window.
func UpcomingAppointments(db *gorm.DB, now time.Time) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := db.Preload("Patient").Preload("Specialist").
		Where("status = ? AND scheduled_at > ? AND scheduled_at <= ?",
			models.AppointmentConfirmed, now, now.Add(ReminderWindow)).
		Order("scheduled_at").
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("jobs: list upcoming appointments: %w", err)
	}
	return appts, nil
}

// SweepStaleSessions closes sessions still active long after they started.
// The appointment is completed with the swept end time so the record is
// consistent even though no client finalized it.
func SweepStaleSessions(db *gorm.DB, now time.Time, staleAfter time.Duration) (int, error) {
	cutoff := now.Add(-staleAfter)
	var stale []models.VideoSession
	err := db.Where("status = ? AND started_at IS NOT NULL AND started_at < ?",
		models.SessionActive, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("jobs: list stale sessions: %w", err)
	}

	for i := range stale {
		vs := &stale[i]
		vs.Status = models.SessionEnded
		vs.EndedAt = &now
		if err := db.Save(vs).Error; err != nil {
			return 0, fmt.Errorf("jobs: close stale session %s: %w", vs.ID, err)
		}

		durationMin := 0
		if vs.StartedAt != nil {
			durationMin = int(now.Sub(*vs.StartedAt).Minutes())
		}
		updates := map[string]interface{}{
			"status":               models.AppointmentCompleted,
			"session_ended_at":     now,
			"session_duration_min": durationMin,
		}
		if err := db.Model(&models.Appointment{}).Where("id = ?", vs.AppointmentID).Updates(updates).Error; err != nil {
			return 0, fmt.Errorf("jobs: complete appointment %s: %w", vs.AppointmentID, err)
		}
	}
	return len(stale), nil
}
