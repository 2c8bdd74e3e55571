package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sozodigi/telecare/internal/models"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for creating a video session.
type CreateOpts struct {
	AppointmentID string
	Issuer        *TokenIssuer
}

// Create provisions the video session for an appointment and mints a join
// token for each participant. Creating a session that already exists
// returns the existing one, so both clients can race the call.
func Create(db *gorm.DB, opts CreateOpts) (*models.VideoSession, error) {
	if opts.AppointmentID == "" {
		return nil, fmt.Errorf("session: appointment ID is required")
	}
	if opts.Issuer == nil {
		return nil, fmt.Errorf("session: token issuer is required")
	}

	var existing models.VideoSession
	err := db.Where("appointment_id = ?", opts.AppointmentID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session: check existing for %s: %w", opts.AppointmentID, err)
	}

	var appt models.Appointment
	if err := db.Where("id = ?", opts.AppointmentID).First(&appt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: appointment not found: %s", opts.AppointmentID)
		}
		return nil, fmt.Errorf("session: load appointment %s: %w", opts.AppointmentID, err)
	}

	id := uuid.NewString()
	room := "consult-" + id[:8]

	patientToken, err := opts.Issuer.Issue(room, appt.PatientID, "user")
	if err != nil {
		return nil, err
	}
	specialistToken, err := opts.Issuer.Issue(room, appt.SpecialistID, "specialist")
	if err != nil {
		return nil, err
	}

	vs := models.VideoSession{
		ID:              id,
		AppointmentID:   opts.AppointmentID,
		RoomName:        room,
		Status:          models.SessionCreated,
		PatientToken:    patientToken,
		SpecialistToken: specialistToken,
		Prescriptions:   "[]",
		LabReferrals:    "[]",
	}
	if err := db.Create(&vs).Error; err != nil {
		return nil, fmt.Errorf("session: create for %s: %w", opts.AppointmentID, err)
	}
	return &vs, nil
}

// GetByAppointment returns the video session attached to an appointment.
func GetByAppointment(db *gorm.DB, appointmentID string) (*models.VideoSession, error) {
	var vs models.VideoSession
	if err := db.Where("appointment_id = ?", appointmentID).First(&vs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: not found for appointment %s", appointmentID)
		}
		return nil, fmt.Errorf("session: load for appointment %s: %w", appointmentID, err)
	}
	return &vs, nil
}

// Start marks a session active and stamps the start time on both the
// session and its appointment. Starting an already active session keeps
// the original start time.
func Start(db *gorm.DB, appointmentID string, now time.Time) (*models.VideoSession, error) {
	vs, err := GetByAppointment(db, appointmentID)
	if err != nil {
		return nil, err
	}
	if vs.Status == models.SessionActive {
		return vs, nil
	}
	if vs.Status == models.SessionEnded {
		return nil, fmt.Errorf("session: %s already ended", vs.ID)
	}

	vs.Status = models.SessionActive
	vs.StartedAt = &now
	if err := db.Save(vs).Error; err != nil {
		return nil, fmt.Errorf("session: start %s: %w", vs.ID, err)
	}

	updates := map[string]interface{}{
		"status":             models.AppointmentOngoing,
		"session_started_at": now,
	}
	if err := db.Model(&models.Appointment{}).Where("id = ?", appointmentID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("session: mark appointment %s ongoing: %w", appointmentID, err)
	}
	return vs, nil
}

// End marks a session ended and records the actual timings on the
// appointment. Ending an already ended session is a no-op.
func End(db *gorm.DB, appointmentID string, endedAt time.Time, durationMin int) error {
	vs, err := GetByAppointment(db, appointmentID)
	if err != nil {
		return err
	}
	if vs.Status == models.SessionEnded {
		return nil
	}

	vs.Status = models.SessionEnded
	vs.EndedAt = &endedAt
	if err := db.Save(vs).Error; err != nil {
		return fmt.Errorf("session: end %s: %w", vs.ID, err)
	}

	updates := map[string]interface{}{
		"session_ended_at":     endedAt,
		"session_duration_min": durationMin,
	}
	if err := db.Model(&models.Appointment{}).Where("id = ?", appointmentID).Updates(updates).Error; err != nil {
		return fmt.Errorf("session: record end on appointment %s: %w", appointmentID, err)
	}
	return nil
}

// CompleteAppointment marks an appointment completed.
func CompleteAppointment(db *gorm.DB, appointmentID string) error {
	res := db.Model(&models.Appointment{}).
		Where("id = ?", appointmentID).
		Update("status", models.AppointmentCompleted)
	if res.Error != nil {
		return fmt.Errorf("session: complete appointment %s: %w", appointmentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session: appointment not found: %s", appointmentID)
	}
	return nil
}

// UpdateArtifacts replaces the notes, prescriptions and lab referrals
// recorded on a session. Empty strings leave the existing value untouched.
func UpdateArtifacts(db *gorm.DB, appointmentID, notes, prescriptions, labReferrals string) error {
	vs, err := GetByAppointment(db, appointmentID)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{}
	if notes != "" {
		updates["notes"] = notes
	}
	if prescriptions != "" {
		updates["prescriptions"] = prescriptions
	}
	if labReferrals != "" {
		updates["lab_referrals"] = labReferrals
	}
	if len(updates) == 0 {
		return nil
	}
	if err := db.Model(vs).Updates(updates).Error; err != nil {
		return fmt.Errorf("session: update artifacts for %s: %w", vs.ID, err)
	}
	return nil
}
