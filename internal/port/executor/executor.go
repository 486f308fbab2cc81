// Package executor defines the task executor port, polymorphic over agent type.
package executor

import (
	"context"
	"encoding/json"

	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
)

// Executor runs a task on behalf of an agent and returns an opaque structured
// result. Implementations are selected by the agent's type tag.
type Executor interface {
	// Type returns the agent type this executor serves.
	Type() string

	// Execute runs the task. The returned payload is opaque to the core.
	Execute(ctx context.Context, ag *agent.Agent, t *task.Task) (json.RawMessage, error)
}

// Resolver resolves an executor for an agent type.
type Resolver interface {
	Resolve(agentType string) (Executor, error)
}

// FactoryResolver resolves executors through the package factory registry.
type FactoryResolver struct {
	Config map[string]string
}

// Resolve creates an executor for the given agent type.
func (r FactoryResolver) Resolve(agentType string) (Executor, error) {
	return New(agentType, r.Config)
}
