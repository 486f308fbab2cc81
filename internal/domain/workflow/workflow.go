// Package workflow defines autonomous workflow definitions.
package workflow

import (
	"fmt"
	"time"

	"github.com/buildhive/buildhive/internal/domain"
)

// Trigger describes an event that starts a workflow.
type Trigger struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Action describes a step the workflow performs when triggered.
type Action struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Condition gates workflow execution on a field comparison.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Workflow is a persisted autonomous workflow definition. Definitions are
// stored and listed; trigger evaluation is an external concern.
type Workflow struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Triggers   []Trigger   `json:"triggers"`
	Actions    []Action    `json:"actions"`
	Conditions []Condition `json:"conditions,omitempty"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// StatusActive marks a workflow eligible for triggering.
const StatusActive = "active"

// CreateRequest holds the fields needed to create a workflow.
type CreateRequest struct {
	Name       string      `json:"workflow_name"`
	Triggers   []Trigger   `json:"triggers"`
	Actions    []Action    `json:"actions"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Validate checks the request for required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: workflow_name is required", domain.ErrValidation)
	}
	if len(r.Triggers) == 0 {
		return fmt.Errorf("%w: at least one trigger is required", domain.ErrValidation)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", domain.ErrValidation)
	}
	for i, t := range r.Triggers {
		if t.Type == "" {
			return fmt.Errorf("%w: trigger %d is missing a type", domain.ErrValidation, i)
		}
	}
	for i, a := range r.Actions {
		if a.Type == "" {
			return fmt.Errorf("%w: action %d is missing a type", domain.ErrValidation, i)
		}
	}
	return nil
}
