package api

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sozodigi/telecare/internal/models"
	"github.com/sozodigi/telecare/internal/session"
	"gorm.io/gorm"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, issuer *session.TokenIssuer) {
	router.GET("/consultation-appointments/:id", handleGetAppointment(db))
	router.PATCH("/consultation-appointments/update/custom/:id", handleUpdateAppointment(db))

	router.POST("/video-sessions", handleCreateSession(db, issuer))
	router.GET("/video-sessions/:appointmentId", handleGetSession(db))
	router.PATCH("/video-sessions/:appointmentId", handleUpdateSession(db))

	router.POST("/certificates/create", handleCreateCertificate(db))
}

func ok(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "message": msg})
}

var appointmentStatuses = map[string]bool{
	models.AppointmentPending:   true,
	models.AppointmentConfirmed: true,
	models.AppointmentOngoing:   true,
	models.AppointmentCompleted: true,
	models.AppointmentCancelled: true,
}

func handleGetAppointment(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var appt models.Appointment
		err := db.Preload("Patient").Preload("Specialist").
			First(&appt, "id = ?", c.Param("id")).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				fail(c, http.StatusNotFound, "appointment not found")
				return
			}
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		ok(c, http.StatusOK, appt)
	}
}

func handleUpdateAppointment(db *gorm.DB) gin.HandlerFunc {
	type body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	return func(c *gin.Context) {
		var req body
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body")
			return
		}

		updates := map[string]interface{}{}
		if req.Status != "" {
			if !appointmentStatuses[req.Status] {
				fail(c, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
				return
			}
			updates["status"] = req.Status
		}
		if req.Notes != "" {
			updates["notes"] = req.Notes
		}
		if len(updates) == 0 {
			fail(c, http.StatusBadRequest, "nothing to update")
			return
		}

		res := db.Model(&models.Appointment{}).Where("id = ?", c.Param("id")).Updates(updates)
		if res.Error != nil {
			fail(c, http.StatusInternalServerError, res.Error.Error())
			return
		}
		if res.RowsAffected == 0 {
			fail(c, http.StatusNotFound, "appointment not found")
			return
		}

		var appt models.Appointment
		if err := db.First(&appt, "id = ?", c.Param("id")).Error; err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		ok(c, http.StatusOK, appt)
	}
}

func handleCreateSession(db *gorm.DB, issuer *session.TokenIssuer) gin.HandlerFunc {
	type body struct {
		AppointmentID string `json:"appointmentId"`
	}
	return func(c *gin.Context) {
		var req body
		if err := c.ShouldBindJSON(&req); err != nil || req.AppointmentID == "" {
			fail(c, http.StatusBadRequest, "appointmentId is required")
			return
		}

		vs, err := session.Create(db, session.CreateOpts{
			AppointmentID: req.AppointmentID,
			Issuer:        issuer,
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) || isNotFound(err) {
				fail(c, http.StatusNotFound, err.Error())
				return
			}
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		ok(c, http.StatusCreated, vs)
	}
}

func handleGetSession(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, err := session.GetByAppointment(db, c.Param("appointmentId"))
		if err != nil {
			if isNotFound(err) {
				fail(c, http.StatusNotFound, err.Error())
				return
			}
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		ok(c, http.StatusOK, vs)
	}
}

func handleUpdateSession(db *gorm.DB) gin.HandlerFunc {
	type body struct {
		Status        string     `json:"status"`
		EndedAt       *time.Time `json:"endedAt"`
		DurationMin   int        `json:"durationMin"`
		SessionNotes  string     `json:"sessionNotes"`
		Prescriptions string     `json:"prescriptions"`
		LabReferrals  string     `json:"labReferrals"`
	}
	return func(c *gin.Context) {
		var req body
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body")
			return
		}
		apptID := c.Param("appointmentId")

		switch req.Status {
		case "":
			// artifacts-only update
		case models.SessionActive:
			if _, err := session.Start(db, apptID, time.Now()); err != nil {
				failSession(c, err)
				return
			}
		case models.SessionEnded:
			endedAt := time.Now()
			if req.EndedAt != nil {
				endedAt = *req.EndedAt
			}
			if err := session.End(db, apptID, endedAt, req.DurationMin); err != nil {
				failSession(c, err)
				return
			}
		default:
			fail(c, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
			return
		}

		if req.SessionNotes != "" || req.Prescriptions != "" || req.LabReferrals != "" {
			if err := session.UpdateArtifacts(db, apptID, req.SessionNotes, req.Prescriptions, req.LabReferrals); err != nil {
				failSession(c, err)
				return
			}
		}

		vs, err := session.GetByAppointment(db, apptID)
		if err != nil {
			failSession(c, err)
			return
		}
		ok(c, http.StatusOK, vs)
	}
}

func handleCreateCertificate(db *gorm.DB) gin.HandlerFunc {
	type body struct {
		AppointmentID string    `json:"appointmentId"`
		PatientID     string    `json:"patientId"`
		IssuedByID    string    `json:"issuedById"`
		Diagnosis     string    `json:"diagnosis"`
		Remarks       string    `json:"remarks"`
		StartDate     time.Time `json:"startDate"`
		EndDate       time.Time `json:"endDate"`
	}
	return func(c *gin.Context) {
		var req body
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.AppointmentID == "" || req.PatientID == "" {
			fail(c, http.StatusBadRequest, "appointmentId and patientId are required")
			return
		}

		number, err := generateCertNumber(time.Now())
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		cert := models.Certificate{
			Number:        number,
			AppointmentID: req.AppointmentID,
			PatientID:     req.PatientID,
			IssuedByID:    req.IssuedByID,
			Diagnosis:     req.Diagnosis,
			Remarks:       req.Remarks,
			StartDate:     req.StartDate,
			EndDate:       req.EndDate,
		}
		if err := db.Create(&cert).Error; err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		ok(c, http.StatusCreated, cert)
	}
}

// generateCertNumber creates a certificate number in CERT-YYYY-NNNNN format.
func generateCertNumber(now time.Time) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("api: generate certificate number: %w", err)
	}
	n := binary.BigEndian.Uint32(b) % 100000
	return fmt.Sprintf("CERT-%d-%05d", now.Year(), n), nil
}

func isNotFound(err error) bool {
	return err != nil && (errors.Is(err, gorm.ErrRecordNotFound) ||
		strings.Contains(err.Error(), "not found"))
}

func failSession(c *gin.Context, err error) {
	if isNotFound(err) {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	fail(c, http.StatusInternalServerError, err.Error())
}
