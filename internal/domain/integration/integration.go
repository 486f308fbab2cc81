// Package integration defines external integration records kept in sync by
// the batch sync job.
package integration

import "time"

// Status values for an integration.
const (
	StatusPending   = "pending"
	StatusConnected = "connected"
	StatusError     = "error"
)

// Integration is a configured connection to an external system.
type Integration struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Config       map[string]any `json:"config,omitempty"`
	Status       string         `json:"status"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
