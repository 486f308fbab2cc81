// Package agent defines the builder agent entity and the in-memory registry
// that owns capacity counters and performance statistics.
package agent

import "time"

// Status represents the availability state of an agent.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Config holds per-agent scheduling configuration.
type Config struct {
	MaxConcurrentTasks int      `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	PreferredLanguages []string `json:"preferred_languages,omitempty" yaml:"preferred_languages"`
	Specializations    []string `json:"specializations,omitempty" yaml:"specializations"`
}

// Performance tracks the outcome history of an agent.
// SuccessRate is completed/total, or 0 while total is 0.
type Performance struct {
	TasksTotal     int     `json:"tasks_total"`
	TasksCompleted int     `json:"tasks_completed"`
	TasksFailed    int     `json:"tasks_failed"`
	SuccessRate    float64 `json:"success_rate"`
}

// Agent represents a builder agent capable of executing delegated tasks.
type Agent struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	Status        Status      `json:"status"`
	Capabilities  []string    `json:"capabilities"`
	Config        Config      `json:"config"`
	CurrentTasks  int         `json:"current_tasks"`
	Performance   Performance `json:"performance"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	CreatedAt     time.Time   `json:"created_at"`
}

// HasCapability reports whether the agent declares the given capability tag.
func (a *Agent) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasSpecialization reports whether the agent declares the given domain affinity.
func (a *Agent) HasSpecialization(domain string) bool {
	for _, s := range a.Config.Specializations {
		if s == domain {
			return true
		}
	}
	return false
}

// Available reports whether the agent can accept another task.
func (a *Agent) Available() bool {
	return a.Status == StatusActive && a.CurrentTasks < a.Config.MaxConcurrentTasks
}

// clone returns a deep copy so registry snapshots never alias internal state.
func (a *Agent) clone() Agent {
	cp := *a
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	cp.Config.PreferredLanguages = append([]string(nil), a.Config.PreferredLanguages...)
	cp.Config.Specializations = append([]string(nil), a.Config.Specializations...)
	return cp
}
