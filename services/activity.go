package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"wordpress-plugin-generator/models"
	"wordpress-plugin-generator/utils"
)

const (
	ActivityInfo  = "info"
	ActivityError = "error"
)

// ActivityRecorder receives deploy, delete and verify events.
type ActivityRecorder interface {
	Record(level, message, pluginSlug string)
}

// ActivityLog is a bounded, newest-first activity feed kept in a JSON file.
type ActivityLog struct {
	path string
	max  int
	mu   sync.Mutex
	now  func() time.Time
}

func NewActivityLog(path string, max int) *ActivityLog {
	if max <= 0 {
		max = 100
	}
	return &ActivityLog{path: path, max: max, now: time.Now}
}

// readActivities reads the list of activities from the JSON file.
// Callers hold the mutex.
func (a *ActivityLog) readActivities() ([]models.Activity, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Activity{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read activities file: %w", err)
	}
	if len(data) == 0 {
		return []models.Activity{}, nil
	}

	var activities []models.Activity
	if err := json.Unmarshal(data, &activities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activities data: %w", err)
	}
	return activities, nil
}

func (a *ActivityLog) writeActivities(activities []models.Activity) error {
	data, err := json.MarshalIndent(activities, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal activities data: %w", err)
	}
	if err := os.WriteFile(a.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write activities file: %w", err)
	}
	return nil
}

// Record adds an entry at the front of the feed. Failures are logged only.
func (a *ActivityLog) Record(level, message, pluginSlug string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	activities, err := a.readActivities()
	if err != nil {
		utils.LogError("Error reading activities to log", "error", err)
		return
	}

	entry := models.Activity{
		ID:         uuid.NewString(),
		Message:    message,
		Timestamp:  a.now().UTC().Format(time.RFC3339),
		Level:      level,
		PluginSlug: pluginSlug,
	}
	activities = append([]models.Activity{entry}, activities...)
	if len(activities) > a.max {
		activities = activities[:a.max]
	}

	if err := a.writeActivities(activities); err != nil {
		utils.LogError("Error writing activities after logging", "error", err)
	}
}

// List returns the feed, newest first.
func (a *ActivityLog) List() ([]models.Activity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readActivities()
}
