package models

import "time"

// User is any account on the platform: patients carry the "user" role,
// clinicians the "specialist" role.
type User struct {
	ID             string `gorm:"primaryKey;size:36"`
	FirstName      string `gorm:"size:64;not null"`
	LastName       string `gorm:"size:64;not null"`
	Email          string `gorm:"size:128;uniqueIndex"`
	Phone          string `gorm:"size:32"`
	Role           string `gorm:"size:16;default:user;index"`
	Specialization string `gorm:"size:64"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName returns the user's display name.
func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
