package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/buildhive/buildhive/internal/domain"
	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/domain/upgrade"
	"github.com/buildhive/buildhive/internal/domain/workflow"
	"github.com/buildhive/buildhive/internal/port/database"
	"github.com/buildhive/buildhive/internal/port/messagequeue"
)

// DelegateRequest holds the fields accepted when delegating a task.
type DelegateRequest struct {
	Description    string       `json:"task_description"`
	Context        task.Context `json:"project_context"`
	PreferredAgent string       `json:"preferred_agent,omitempty"`
}

// Validate checks the request for required fields.
func (r *DelegateRequest) Validate() error {
	if r.Description == "" {
		return fmt.Errorf("%w: task_description is required", domain.ErrValidation)
	}
	return nil
}

// StatusReport is the system-wide snapshot returned by Status.
type StatusReport struct {
	Agents      []agent.Agent `json:"agents"`
	QueueDepth  int           `json:"queue_depth"`
	Running     int           `json:"running"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Delegation is the entry point for all task-delegation operations. It builds
// tasks from requests, records them, and hands them to the scheduler.
type Delegation struct {
	registry  *agent.Registry
	scheduler *Scheduler
	store     database.Store
	queue     messagequeue.Queue
}

// NewDelegation creates a Delegation service. store and queue may be nil.
func NewDelegation(registry *agent.Registry, scheduler *Scheduler, store database.Store, queue messagequeue.Queue) *Delegation {
	return &Delegation{
		registry:  registry,
		scheduler: scheduler,
		store:     store,
		queue:     queue,
	}
}

// Delegate creates a queued task from the request and enqueues it.
// The task type is derived from the description; the priority comes from the
// project context and defaults to medium.
func (d *Delegation) Delegate(ctx context.Context, req DelegateRequest) (task.Task, error) {
	if err := req.Validate(); err != nil {
		return task.Task{}, err
	}

	t := &task.Task{
		ID:             uuid.NewString(),
		ProjectID:      req.Context.ProjectID,
		Description:    req.Description,
		Type:           task.DeriveType(req.Description),
		Priority:       task.ParsePriority(req.Context.Priority),
		Status:         task.StatusQueued,
		PreferredAgent: req.PreferredAgent,
		Context:        req.Context,
		CreatedAt:      time.Now(),
	}

	if d.store != nil {
		if err := d.store.CreateTask(ctx, t); err != nil {
			slog.Error("persist delegated task", "task_id", t.ID, "error", err)
		}
	}

	d.publishQueued(ctx, t)

	// Copy before Enqueue; the dispatch loop owns t from then on.
	snapshot := *t
	d.scheduler.Enqueue(t)

	slog.Info("task delegated",
		"task_id", snapshot.ID, "type", snapshot.Type, "priority", snapshot.Priority,
		"preferred_agent", snapshot.PreferredAgent)
	return snapshot, nil
}

// Monitor returns the latest known state of a task. The scheduler's index is
// authoritative for this process; the store covers tasks from earlier runs.
func (d *Delegation) Monitor(ctx context.Context, id string) (task.Task, error) {
	if t, ok := d.scheduler.Snapshot(id); ok {
		return t, nil
	}

	if d.store != nil {
		t, err := d.store.GetTask(ctx, id)
		if err == nil {
			return *t, nil
		}
	}
	return task.Task{}, fmt.Errorf("monitor task %s: %w", id, domain.ErrNotFound)
}

// MonitorView pairs a task snapshot with the registry's view of one agent.
type MonitorView struct {
	Task  task.Task    `json:"task"`
	Agent *agent.Agent `json:"agent,omitempty"`
}

// MonitorWithAgent returns the task snapshot together with the named agent's
// current registry state. An empty agentName falls back to the agent the task
// is assigned to; when neither is known the agent view is omitted.
func (d *Delegation) MonitorWithAgent(ctx context.Context, id, agentName string) (MonitorView, error) {
	t, err := d.Monitor(ctx, id)
	if err != nil {
		return MonitorView{}, err
	}

	view := MonitorView{Task: t}
	if agentName == "" {
		agentName = t.AgentName
	}
	if agentName != "" {
		a, err := d.registry.Get(agentName)
		if err != nil {
			return MonitorView{}, fmt.Errorf("monitor agent %s: %w", agentName, err)
		}
		view.Agent = a
	}
	return view, nil
}

// Cancel cancels a still-queued task.
func (d *Delegation) Cancel(ctx context.Context, id string) (task.Task, error) {
	return d.scheduler.Cancel(ctx, id)
}

// Retry re-enqueues a failed task.
func (d *Delegation) Retry(ctx context.Context, id string) (task.Task, error) {
	return d.scheduler.Retry(ctx, id)
}

// Status reports the agent pool plus queue and dispatch state.
func (d *Delegation) Status(_ context.Context) StatusReport {
	return StatusReport{
		Agents:      d.registry.List(),
		QueueDepth:  d.scheduler.QueueDepth(),
		Running:     d.scheduler.RunningCount(),
		GeneratedAt: time.Now(),
	}
}

// ScheduleUpgrade records an upgrade and enqueues a high-priority task that
// carries the actual work.
func (d *Delegation) ScheduleUpgrade(ctx context.Context, req upgrade.ScheduleRequest) (upgrade.Upgrade, error) {
	if err := req.Validate(); err != nil {
		return upgrade.Upgrade{}, err
	}

	t, err := d.Delegate(ctx, DelegateRequest{
		Description: fmt.Sprintf("upgrade %s for project %s", req.UpgradeType, req.ProjectID),
		Context: task.Context{
			ProjectID: req.ProjectID,
			Priority:  string(task.PriorityHigh),
			Metadata:  req.Requirements,
		},
	})
	if err != nil {
		return upgrade.Upgrade{}, err
	}

	u := upgrade.Upgrade{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		UpgradeType:  req.UpgradeType,
		Requirements: req.Requirements,
		Schedule:     req.Schedule,
		TaskID:       t.ID,
		Status:       upgrade.StatusScheduled,
		CreatedAt:    time.Now(),
	}

	if d.store != nil {
		if err := d.store.CreateUpgrade(ctx, &u); err != nil {
			slog.Error("persist upgrade", "upgrade_id", u.ID, "error", err)
		}
	}

	slog.Info("upgrade scheduled",
		"upgrade_id", u.ID, "project_id", u.ProjectID, "type", u.UpgradeType, "task_id", t.ID)
	return u, nil
}

// CreateWorkflow validates and persists an autonomous workflow definition.
func (d *Delegation) CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (workflow.Workflow, error) {
	if err := req.Validate(); err != nil {
		return workflow.Workflow{}, err
	}

	w := workflow.Workflow{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Triggers:   req.Triggers,
		Actions:    req.Actions,
		Conditions: req.Conditions,
		Status:     workflow.StatusActive,
		CreatedAt:  time.Now(),
	}

	if d.store != nil {
		if err := d.store.CreateWorkflow(ctx, &w); err != nil {
			return workflow.Workflow{}, fmt.Errorf("create workflow: %w", err)
		}
	}

	slog.Info("workflow created", "workflow_id", w.ID, "name", w.Name,
		"triggers", len(w.Triggers), "actions", len(w.Actions))
	return w, nil
}

// publishQueued emits the queued event for a freshly delegated task.
func (d *Delegation) publishQueued(ctx context.Context, t *task.Task) {
	if d.queue == nil {
		return
	}
	ev := TaskEvent{
		TaskID:   t.ID,
		Status:   string(t.Status),
		Type:     string(t.Type),
		Priority: string(t.Priority),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal queued event", "task_id", t.ID, "error", err)
		return
	}
	if err := d.queue.Publish(ctx, messagequeue.SubjectTaskQueued, data); err != nil {
		slog.Error("publish queued event", "task_id", t.ID, "error", err)
	}
}
