// Package task defines the Task domain entity and its lifecycle state machine.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status represents the current lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrInvalidTransition indicates an attempted transition the state machine
// does not permit. Hitting it is a programming error, not a runtime condition.
var ErrInvalidTransition = errors.New("invalid task transition")

// ErrCancellationRejected indicates a cancellation request for a task that
// already left the queue.
var ErrCancellationRejected = errors.New("cancellation rejected: task already left the queue")

// validTransitions is the complete transition table. failed → queued is the
// explicit retry edge.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusQueued},
}

// CanTransition reports whether from → to is a valid lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Priority is the dispatch priority band of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the numeric dispatch rank of the priority band.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority maps a string to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s)
	default:
		return PriorityMedium
	}
}

// Context carries the project context supplied at delegation time.
type Context struct {
	ProjectID string         `json:"project_id,omitempty"`
	TechStack []string       `json:"tech_stack,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Task represents a unit of delegated work.
type Task struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project_id,omitempty"`
	Description    string          `json:"description"`
	Type           Type            `json:"type"`
	Priority       Priority        `json:"priority"`
	Status         Status          `json:"status"`
	Progress       int             `json:"progress"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	RetryCount     int             `json:"retry_count"`
	AgentID        string          `json:"agent_id,omitempty"`
	AgentName      string          `json:"agent_name,omitempty"`
	PreferredAgent string          `json:"preferred_agent,omitempty"`
	Context        Context         `json:"context"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Transition moves the task to the given status, enforcing the state machine.
func (t *Task) Transition(to Status) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s (task %s)", ErrInvalidTransition, t.Status, to, t.ID)
	}
	t.Status = to
	return nil
}
