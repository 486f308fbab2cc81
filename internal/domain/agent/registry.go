package agent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildhive/buildhive/internal/domain"
)

// ErrAtCapacity indicates the agent already runs its maximum concurrent tasks.
var ErrAtCapacity = errors.New("agent at capacity")

// ErrNoAgentAvailable indicates no active agent has spare capacity.
var ErrNoAgentAvailable = errors.New("no available agent")

// defaultMaxConcurrent is used when a registration omits the limit.
const defaultMaxConcurrent = 3

// Spec holds the fields needed to register an agent.
type Spec struct {
	Name         string   `json:"name" yaml:"name"`
	Type         string   `json:"type" yaml:"type"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Config       Config   `json:"config" yaml:"config"`
}

// Registry owns the set of known agents. All mutation goes through its
// synchronized operations; snapshots returned to callers are deep copies.
// Iteration order is registration order, which makes selection tie-breaking
// deterministic.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*Agent // keyed by name
	order  []string          // registration order
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register upserts an agent by name and returns its id. Re-registering an
// existing name replaces the configuration and resets all counters; the id
// stays stable so external references keep resolving.
func (r *Registry) Register(spec Spec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("%w: agent name is required", domain.ErrValidation)
	}
	if spec.Type == "" {
		return "", fmt.Errorf("%w: agent type is required", domain.ErrValidation)
	}
	if spec.Config.MaxConcurrentTasks <= 0 {
		spec.Config.MaxConcurrentTasks = defaultMaxConcurrent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	id := uuid.NewString()
	createdAt := now
	if existing, ok := r.agents[spec.Name]; ok {
		id = existing.ID
		createdAt = existing.CreatedAt
	} else {
		r.order = append(r.order, spec.Name)
	}

	r.agents[spec.Name] = &Agent{
		ID:            id,
		Name:          spec.Name,
		Type:          spec.Type,
		Status:        StatusActive,
		Capabilities:  append([]string(nil), spec.Capabilities...),
		Config:        spec.Config,
		LastHeartbeat: now,
		CreatedAt:     createdAt,
	}
	return id, nil
}

// Heartbeat updates the agent's last-heartbeat timestamp. It has no other effect.
func (r *Registry) Heartbeat(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("heartbeat agent %s: %w", name, domain.ErrNotFound)
	}
	a.LastHeartbeat = time.Now()
	return nil
}

// Get returns a snapshot of the agent with the given name.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("get agent %s: %w", name, domain.ErrNotFound)
	}
	cp := a.clone()
	return &cp, nil
}

// GetByID returns a snapshot of the agent with the given id.
func (r *Registry) GetByID(id string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if a := r.agents[name]; a.ID == id {
			cp := a.clone()
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get agent by id %s: %w", id, domain.ErrNotFound)
}

// List returns snapshots of all agents in registration order.
func (r *Registry) List() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name].clone())
	}
	return out
}

// ListAvailable returns snapshots of active agents with spare capacity,
// in registration order.
func (r *Registry) ListAvailable() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Agent
	for _, name := range r.order {
		if a := r.agents[name]; a.Available() {
			out = append(out, a.clone())
		}
	}
	return out
}

// Reserve atomically increments the agent's task count and returns a snapshot
// of the agent after the reservation. It fails with ErrAtCapacity when the
// agent is already at its limit.
func (r *Registry) Reserve(name string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("reserve agent %s: %w", name, domain.ErrNotFound)
	}
	if a.CurrentTasks >= a.Config.MaxConcurrentTasks {
		return nil, fmt.Errorf("reserve agent %s: %w", name, ErrAtCapacity)
	}
	a.CurrentTasks++
	cp := a.clone()
	return &cp, nil
}

// Release atomically decrements the agent's task count (never below zero) and
// records the task outcome in the performance counters. It is safe to call
// for an agent that was deactivated in the meantime.
func (r *Registry) Release(name string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("release agent %s: %w", name, domain.ErrNotFound)
	}
	if a.CurrentTasks > 0 {
		a.CurrentTasks--
	}
	a.Performance.TasksTotal++
	if success {
		a.Performance.TasksCompleted++
	} else {
		a.Performance.TasksFailed++
	}
	a.Performance.SuccessRate = float64(a.Performance.TasksCompleted) / float64(a.Performance.TasksTotal)
	return nil
}

// SetActive toggles the agent's status. In-flight reservations are unaffected.
func (r *Registry) SetActive(name string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[name]
	if !ok {
		return fmt.Errorf("set active agent %s: %w", name, domain.ErrNotFound)
	}
	if active {
		a.Status = StatusActive
	} else {
		a.Status = StatusInactive
	}
	return nil
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}
