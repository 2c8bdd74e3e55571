package models

import "time"

// Appointment statuses.
const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentOngoing   = "ongoing"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
)

// Appointment is a booked consultation between a patient and a specialist.
type Appointment struct {
	ID           string    `gorm:"primaryKey;size:36"`
	PatientID    string    `gorm:"size:36;index;not null"`
	SpecialistID string    `gorm:"size:36;index;not null"`
	ScheduledAt  time.Time `gorm:"index"`
	DurationMin  int       `gorm:"default:30"`
	Status       string    `gorm:"size:16;default:pending;index"`
	Notes        string    `gorm:"type:text"`

	// Actual consultation timings, recorded when the video session ends.
	SessionStartedAt   *time.Time
	SessionEndedAt     *time.Time
	SessionDurationMin int

	CreatedAt time.Time
	UpdatedAt time.Time

	Patient    *User `gorm:"foreignKey:PatientID"`
	Specialist *User `gorm:"foreignKey:SpecialistID"`
}
