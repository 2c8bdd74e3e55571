package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sozodigi/telecare/internal/models"
	"github.com/sozodigi/telecare/internal/session"
)

// Client is the HTTP client services use to reach the API server.
// Transient failures are retried with a linear backoff.
type Client struct {
	base    string
	token   string
	http    *http.Client
	retries int
	backoff time.Duration
}

var _ session.Backend = (*Client)(nil)

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		retries: 3,
		backoff: 500 * time.Millisecond,
	}, nil
}

// SetAuthToken attaches a bearer token to every request.
func (c *Client) SetAuthToken(token string) { c.token = token }

// envelope is the standard API response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends one request, retrying on network errors and 5xx responses.
// The backoff grows linearly with the attempt number.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("api: build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		var env envelope
		decodeErr := json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			continue
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("api: decode response: %w", decodeErr)
		}
		if !env.Success {
			return nil, fmt.Errorf("api: %s %s: %s", method, path, env.Message)
		}
		return env.Data, nil
	}
	return nil, fmt.Errorf("api: %s %s after %d attempts: %w", method, path, c.retries, lastErr)
}

// GetAppointment fetches an appointment by ID.
func (c *Client) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	data, err := c.do(ctx, http.MethodGet, "/consultation-appointments/"+id, nil)
	if err != nil {
		return nil, err
	}
	var appt models.Appointment
	if err := json.Unmarshal(data, &appt); err != nil {
		return nil, fmt.Errorf("api: decode appointment: %w", err)
	}
	return &appt, nil
}

// CreateSession provisions the video session for an appointment.
func (c *Client) CreateSession(ctx context.Context, appointmentID string) (*models.VideoSession, error) {
	data, err := c.do(ctx, http.MethodPost, "/video-sessions", map[string]string{
		"appointmentId": appointmentID,
	})
	if err != nil {
		return nil, err
	}
	var vs models.VideoSession
	if err := json.Unmarshal(data, &vs); err != nil {
		return nil, fmt.Errorf("api: decode session: %w", err)
	}
	return &vs, nil
}

// StartSession marks the appointment's session active.
func (c *Client) StartSession(ctx context.Context, appointmentID string) error {
	_, err := c.do(ctx, http.MethodPatch, "/video-sessions/"+appointmentID, map[string]interface{}{
		"status": models.SessionActive,
	})
	return err
}

// CompleteAppointment marks an appointment completed.
func (c *Client) CompleteAppointment(ctx context.Context, appointmentID string) error {
	_, err := c.do(ctx, http.MethodPatch, "/consultation-appointments/update/custom/"+appointmentID, map[string]string{
		"status": models.AppointmentCompleted,
	})
	return err
}

// RecordSessionEnd records the actual end time and duration of a session.
func (c *Client) RecordSessionEnd(ctx context.Context, appointmentID string, endedAt time.Time, durationMin int) error {
	_, err := c.do(ctx, http.MethodPatch, "/video-sessions/"+appointmentID, map[string]interface{}{
		"status":      models.SessionEnded,
		"endedAt":     endedAt,
		"durationMin": durationMin,
	})
	return err
}
