package models

import "time"

// Certificate is a medical certificate issued from a consultation.
type Certificate struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Number        string    `gorm:"size:32;uniqueIndex"`
	AppointmentID string    `gorm:"size:36;index"`
	PatientID     string    `gorm:"size:36;index"`
	IssuedByID    string    `gorm:"size:36"`
	Diagnosis     string    `gorm:"type:text"`
	Remarks       string    `gorm:"type:text"`
	StartDate     time.Time
	EndDate       time.Time
	CreatedAt     time.Time

	Appointment *Appointment `gorm:"foreignKey:AppointmentID"`
	Patient     *User        `gorm:"foreignKey:PatientID"`
	IssuedBy    *User        `gorm:"foreignKey:IssuedByID"`
}
