package models

import "time"

// Video session statuses.
const (
	SessionCreated = "created"
	SessionActive  = "active"
	SessionEnded   = "ended"
)

// VideoSession is the live video room attached to an appointment, along
// with the clinical artifacts produced during the consultation.
type VideoSession struct {
	ID            string `gorm:"primaryKey;size:36"`
	AppointmentID string `gorm:"size:36;uniqueIndex;not null"`
	RoomName      string `gorm:"size:128"`
	Status        string `gorm:"size:16;default:created;index"`

	// Room join tokens issued per participant.
	PatientToken    string `gorm:"type:text"`
	SpecialistToken string `gorm:"type:text"`

	// Clinical artifacts written by the specialist during the session.
	Notes         string `gorm:"type:text"`
	Prescriptions string `gorm:"type:json"`
	LabReferrals  string `gorm:"type:json"`

	StartedAt *time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Appointment *Appointment `gorm:"foreignKey:AppointmentID"`
}
