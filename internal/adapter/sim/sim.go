// Package sim implements the executor port with simulated builder agents.
// Each agent type gets its own result flavor; all share the same timing model.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/port/executor"
)

// defaultBaseDuration is the simulated work per task when the factory config
// carries no base_duration.
const defaultBaseDuration = 200 * time.Millisecond

// AgentTypes are the agent types sim provides executors for.
var AgentTypes = []string{"fullstack", "frontend", "backend", "devops", "general"}

// resultFunc builds the type-specific result payload for a finished task.
type resultFunc func(ag *agent.Agent, t *task.Task) map[string]any

// Executor simulates task execution for one agent type.
type Executor struct {
	typ    string
	base   time.Duration
	result resultFunc
}

// Register installs a sim executor factory for every supported agent type.
// Call it once at startup before the first task is dispatched.
func Register() {
	for _, typ := range AgentTypes {
		executor.Register(typ, factory(typ))
	}
}

func factory(typ string) executor.Factory {
	return func(config map[string]string) (executor.Executor, error) {
		base := defaultBaseDuration
		if raw, ok := config["base_duration"]; ok && raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("sim: parse base_duration %q: %w", raw, err)
			}
			base = d
		}
		return &Executor{typ: typ, base: base, result: resultFor(typ)}, nil
	}
}

// Type returns the agent type this executor serves.
func (e *Executor) Type() string { return e.typ }

// Execute simulates the work and returns a structured result. The simulated
// duration scales with the task type; cancellation aborts the wait.
func (e *Executor) Execute(ctx context.Context, ag *agent.Agent, t *task.Task) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.duration(t.Type)):
	}

	payload := e.result(ag, t)
	payload["agent"] = ag.Name
	payload["task_type"] = string(t.Type)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sim: marshal result: %w", err)
	}
	return data, nil
}

// duration returns the simulated work time for a task type. Builds and
// deploys take longer than quick fixes.
func (e *Executor) duration(typ task.Type) time.Duration {
	switch typ {
	case task.TypeBuild:
		return e.base * 3
	case task.TypeDeploy:
		return e.base * 2
	case task.TypeTest, task.TypeRefactor:
		return e.base * 2
	default:
		return e.base
	}
}
