// Package upgrade defines scheduled autonomous upgrade records.
package upgrade

import (
	"fmt"
	"time"

	"github.com/buildhive/buildhive/internal/domain"
)

// Status values for an upgrade record.
const (
	StatusScheduled = "scheduled"
	StatusRunning   = "running"
	StatusDone      = "done"
)

// Upgrade is a persisted record of a scheduled project upgrade. The actual
// work is carried by an ordinary task enqueued alongside the record.
type Upgrade struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"project_id"`
	UpgradeType  string         `json:"upgrade_type"`
	Requirements map[string]any `json:"requirements,omitempty"`
	Schedule     string         `json:"schedule"`
	TaskID       string         `json:"task_id"`
	Status       string         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ScheduleRequest holds the fields needed to schedule an upgrade.
type ScheduleRequest struct {
	ProjectID    string         `json:"project_id"`
	UpgradeType  string         `json:"upgrade_type"`
	Requirements map[string]any `json:"requirements,omitempty"`
	Schedule     string         `json:"schedule,omitempty"`
}

// Validate checks the request for required fields.
func (r *ScheduleRequest) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("%w: project_id is required", domain.ErrValidation)
	}
	if r.UpgradeType == "" {
		return fmt.Errorf("%w: upgrade_type is required", domain.ErrValidation)
	}
	return nil
}
