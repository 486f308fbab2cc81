package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bhotel "github.com/buildhive/buildhive/internal/adapter/otel"
	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/port/broadcast"
	"github.com/buildhive/buildhive/internal/port/database"
	"github.com/buildhive/buildhive/internal/port/executor"
	"github.com/buildhive/buildhive/internal/port/messagequeue"
)

// TaskEvent is the payload published on task lifecycle subjects and broadcast
// to connected clients.
type TaskEvent struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	Priority  string `json:"priority"`
	AgentName string `json:"agent_name,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
}

// Lifecycle drives a single task from queued to a terminal state,
// coordinating agent reservation and release. Store, queue and hub are
// best-effort collaborators: their failures are logged, never fatal to the
// task, and any of them may be nil.
type Lifecycle struct {
	registry  *agent.Registry
	selector  *Selector
	executors executor.Resolver
	store     database.Store
	queue     messagequeue.Queue
	hub       broadcast.Broadcaster
	record    func(task.Task)
}

// NewLifecycle creates a Lifecycle with all dependencies.
func NewLifecycle(
	registry *agent.Registry,
	selector *Selector,
	executors executor.Resolver,
	store database.Store,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
) *Lifecycle {
	return &Lifecycle{
		registry:  registry,
		selector:  selector,
		executors: executors,
		store:     store,
		queue:     queue,
		hub:       hub,
	}
}

// SetRecorder registers a snapshot sink invoked after every transition.
// The scheduler uses it to keep its task index current.
func (l *Lifecycle) SetRecorder(fn func(task.Task)) {
	l.record = fn
}

// Run drives the task through assigned → in_progress → a terminal state.
// A non-nil error means no agent could be reserved; the caller requeues the
// task at the head of its priority band. Once an agent is reserved, Run
// always reaches a terminal state and releases the reservation exactly once.
func (l *Lifecycle) Run(ctx context.Context, t *task.Task) error {
	ag, err := l.assign(ctx, t)
	if err != nil {
		return err
	}

	l.start(ctx, t, ag)

	result, execErr := l.execute(ctx, ag, t)
	l.finish(ctx, t, ag, result, execErr)
	return nil
}

// assign selects and reserves an agent, then transitions the task to assigned.
func (l *Lifecycle) assign(ctx context.Context, t *task.Task) (*agent.Agent, error) {
	reserved := l.reservePreferred(t)

	if reserved == nil {
		sel, err := l.selector.SelectBest(t)
		if err != nil {
			return nil, err
		}
		reserved, err = l.registry.Reserve(sel.Name)
		if err != nil {
			// Lost the capacity race to a concurrent assignment.
			// Retry selection once against the remaining pool.
			slog.Warn("reservation race lost, retrying selection",
				"task_id", t.ID, "agent", sel.Name)
			sel, err = l.selector.SelectBestExcluding(t, map[string]bool{sel.Name: true})
			if err != nil {
				return nil, err
			}
			reserved, err = l.registry.Reserve(sel.Name)
			if err != nil {
				return nil, fmt.Errorf("reserve after retry: %w", agent.ErrNoAgentAvailable)
			}
		}
	}

	if err := t.Transition(task.StatusAssigned); err != nil {
		_ = l.registry.Release(reserved.Name, false)
		return nil, err
	}
	t.AgentID = reserved.ID
	t.AgentName = reserved.Name

	l.persist(ctx, t)
	l.publish(ctx, messagequeue.SubjectTaskStatus, t)
	l.snapshot(t)

	slog.Info("task assigned", "task_id", t.ID, "agent", reserved.Name, "type", t.Type)
	return reserved, nil
}

// reservePreferred honors an explicitly requested agent when it is available.
func (l *Lifecycle) reservePreferred(t *task.Task) *agent.Agent {
	if t.PreferredAgent == "" {
		return nil
	}
	a, err := l.registry.Get(t.PreferredAgent)
	if err != nil || !a.Available() {
		slog.Debug("preferred agent unavailable, falling back to selection",
			"task_id", t.ID, "agent", t.PreferredAgent)
		return nil
	}
	reserved, err := l.registry.Reserve(t.PreferredAgent)
	if err != nil {
		return nil
	}
	return reserved
}

// start transitions the task to in_progress.
func (l *Lifecycle) start(ctx context.Context, t *task.Task, ag *agent.Agent) {
	now := time.Now()
	_ = t.Transition(task.StatusInProgress)
	t.StartedAt = &now
	t.Progress = 0

	l.persist(ctx, t)
	l.publish(ctx, messagequeue.SubjectTaskStatus, t)
	l.snapshot(t)

	slog.Info("task started", "task_id", t.ID, "agent", ag.Name)
}

// execute resolves the executor for the agent's type and runs the task.
// Executor panics are converted into execution errors so the reservation
// still comes back.
func (l *Lifecycle) execute(ctx context.Context, ag *agent.Agent, t *task.Task) (result json.RawMessage, err error) {
	exec, rerr := l.executors.Resolve(ag.Type)
	if rerr != nil {
		return nil, fmt.Errorf("resolve executor: %w", rerr)
	}

	ctx, span := bhotel.StartExecutionSpan(ctx, t.ID, ag.Name, string(t.Type))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	return exec.Execute(ctx, ag, t)
}

// finish records the terminal outcome and releases the agent's capacity.
// Release happens on every terminal transition regardless of outcome.
func (l *Lifecycle) finish(ctx context.Context, t *task.Task, ag *agent.Agent, result json.RawMessage, execErr error) {
	now := time.Now()
	t.CompletedAt = &now

	if execErr != nil {
		_ = t.Transition(task.StatusFailed)
		t.Error = execErr.Error()
	} else {
		_ = t.Transition(task.StatusCompleted)
		t.Progress = 100
		t.Result = result
	}

	if err := l.registry.Release(ag.Name, execErr == nil); err != nil {
		slog.Error("release agent", "agent", ag.Name, "error", err)
	}

	l.persist(ctx, t)
	l.publish(ctx, messagequeue.SubjectTaskResult, t)
	l.snapshot(t)

	if execErr != nil {
		slog.Warn("task failed", "task_id", t.ID, "agent", ag.Name, "error", execErr)
	} else {
		slog.Info("task completed", "task_id", t.ID, "agent", ag.Name,
			"duration_ms", now.Sub(*t.StartedAt).Milliseconds())
	}
}

// FinalizeCancelled records a queued task's cancellation. The caller has
// already removed the task from the queue; no reservation exists to release.
func (l *Lifecycle) FinalizeCancelled(ctx context.Context, t *task.Task) error {
	if err := t.Transition(task.StatusCancelled); err != nil {
		return err
	}
	now := time.Now()
	t.CompletedAt = &now

	l.persist(ctx, t)
	l.publish(ctx, messagequeue.SubjectTaskResult, t)
	l.snapshot(t)

	slog.Info("task cancelled", "task_id", t.ID)
	return nil
}

// RecordRequeued records a failed task re-entering the queue for retry.
func (l *Lifecycle) RecordRequeued(ctx context.Context, t *task.Task) {
	l.persist(ctx, t)
	l.publish(ctx, messagequeue.SubjectTaskQueued, t)
	l.snapshot(t)

	slog.Info("task requeued", "task_id", t.ID, "retry_count", t.RetryCount)
}

// persist updates the task in the store. Best-effort: the in-process state
// machine remains the source of truth.
func (l *Lifecycle) persist(ctx context.Context, t *task.Task) {
	if l.store == nil {
		return
	}
	if err := l.store.UpdateTask(ctx, t); err != nil {
		slog.Error("persist task", "task_id", t.ID, "status", t.Status, "error", err)
	}
}

// publish emits a TaskEvent on the queue and to the broadcast hub.
func (l *Lifecycle) publish(ctx context.Context, subject string, t *task.Task) {
	ev := TaskEvent{
		TaskID:    t.ID,
		Status:    string(t.Status),
		Type:      string(t.Type),
		Priority:  string(t.Priority),
		AgentName: t.AgentName,
		Progress:  t.Progress,
		Error:     t.Error,
	}

	if l.queue != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("marshal task event", "task_id", t.ID, "error", err)
		} else if err := l.queue.Publish(ctx, subject, data); err != nil {
			slog.Error("publish task event", "task_id", t.ID, "subject", subject, "error", err)
		}
	}

	if l.hub != nil {
		l.hub.BroadcastEvent(ctx, broadcast.EventTaskStatus, ev)
	}
}

// snapshot hands a copy of the task to the recorder, if one is registered.
func (l *Lifecycle) snapshot(t *task.Task) {
	if l.record != nil {
		l.record(*t)
	}
}
