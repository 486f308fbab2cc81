package sim

import (
	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
)

// resultFor returns the result flavor for an agent type. Unknown types fall
// back to the general flavor.
func resultFor(typ string) resultFunc {
	switch typ {
	case "fullstack":
		return fullstackResult
	case "frontend":
		return frontendResult
	case "backend":
		return backendResult
	case "devops":
		return devopsResult
	default:
		return generalResult
	}
}

func fullstackResult(_ *agent.Agent, t *task.Task) map[string]any {
	return map[string]any{
		"summary":       "implemented end to end",
		"files_changed": 7,
		"tests_added":   3,
		"stack_touched": []string{"api", "ui"},
		"description":   t.Description,
	}
}

func frontendResult(_ *agent.Agent, t *task.Task) map[string]any {
	return map[string]any{
		"summary":      "component tree updated",
		"components":   4,
		"a11y_checked": true,
		"description":  t.Description,
	}
}

func backendResult(_ *agent.Agent, t *task.Task) map[string]any {
	return map[string]any{
		"summary":     "service layer updated",
		"endpoints":   2,
		"migrations":  1,
		"description": t.Description,
	}
}

func devopsResult(_ *agent.Agent, t *task.Task) map[string]any {
	return map[string]any{
		"summary":     "pipeline updated",
		"environment": "staging",
		"rollback":    "available",
		"description": t.Description,
	}
}

func generalResult(_ *agent.Agent, t *task.Task) map[string]any {
	return map[string]any{
		"summary":     "task handled",
		"description": t.Description,
	}
}
