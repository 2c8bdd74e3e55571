package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// ResumeCache persists session start times across page reloads so a
// rejoining client keeps the original elapsed time. Entries are keyed
// by appointment ID.
type ResumeCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]time.Time
}

// NewResumeCache loads the cache at path, creating an empty one if the
// file does not exist.
func NewResumeCache(path string) (*ResumeCache, error) {
	c := &ResumeCache{path: path, entries: make(map[string]time.Time)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("session: read resume cache %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("session: parse resume cache %s: %w", path, err)
	}
	return c, nil
}

// key mirrors the storage key used by web clients.
func key(appointmentID string) string {
	return "sessionStartTime-" + appointmentID
}

// Set records the start time for an appointment's session.
func (c *ResumeCache) Set(appointmentID string, startedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(appointmentID)] = startedAt
	return c.flush()
}

// Get returns the recorded start time, if any.
func (c *ResumeCache) Get(appointmentID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[key(appointmentID)]
	return t, ok
}

// Clear removes the entry for an appointment. Clearing an absent entry
// is a no-op.
func (c *ResumeCache) Clear(appointmentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key(appointmentID)]; !ok {
		return nil
	}
	delete(c.entries, key(appointmentID))
	return c.flush()
}

// flush writes the cache to disk. Callers hold c.mu.
func (c *ResumeCache) flush() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal resume cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("session: write resume cache %s: %w", c.path, err)
	}
	return nil
}
