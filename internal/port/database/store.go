// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/integration"
	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/domain/upgrade"
	"github.com/buildhive/buildhive/internal/domain/workflow"
)

// Store is the port interface for persistence. The core records state
// transitions and entity details through it and never depends on store
// internals; registry and queue state remain in-process.
type Store interface {
	// Agents
	SaveAgent(ctx context.Context, a *agent.Agent) error
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	ListAgents(ctx context.Context) ([]agent.Agent, error)

	// Tasks
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, projectID string) ([]task.Task, error)
	UpdateTask(ctx context.Context, t *task.Task) error

	// Workflows
	CreateWorkflow(ctx context.Context, w *workflow.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	ListWorkflows(ctx context.Context) ([]workflow.Workflow, error)

	// Upgrades
	CreateUpgrade(ctx context.Context, u *upgrade.Upgrade) error
	ListUpgrades(ctx context.Context, projectID string) ([]upgrade.Upgrade, error)

	// Integrations
	CreateIntegration(ctx context.Context, i *integration.Integration) error
	ListIntegrations(ctx context.Context) ([]integration.Integration, error)
	UpdateIntegrationSync(ctx context.Context, id string, syncedAt time.Time, syncErr string) error
}
