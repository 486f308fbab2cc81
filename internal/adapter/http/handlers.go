package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/health"
	"github.com/buildhive/buildhive/internal/domain/integration"
	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/domain/upgrade"
	"github.com/buildhive/buildhive/internal/domain/workflow"
	"github.com/buildhive/buildhive/internal/port/broadcast"
	"github.com/buildhive/buildhive/internal/port/database"
	"github.com/buildhive/buildhive/internal/port/messagequeue"
	"github.com/buildhive/buildhive/internal/service"
)

// Delegator is the slice of the delegation service the HTTP surface needs.
type Delegator interface {
	Delegate(ctx context.Context, req service.DelegateRequest) (task.Task, error)
	Monitor(ctx context.Context, id string) (task.Task, error)
	MonitorWithAgent(ctx context.Context, id, agentName string) (service.MonitorView, error)
	Cancel(ctx context.Context, id string) (task.Task, error)
	Retry(ctx context.Context, id string) (task.Task, error)
	Status(ctx context.Context) service.StatusReport
	ScheduleUpgrade(ctx context.Context, req upgrade.ScheduleRequest) (upgrade.Upgrade, error)
	CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (workflow.Workflow, error)
}

// HealthAnalyzer analyzes a project directory.
type HealthAnalyzer interface {
	Analyze(ctx context.Context, path, analysisType string) (health.Report, error)
}

// Syncer runs one batch sync over all recorded integrations.
type Syncer interface {
	SyncAll(ctx context.Context) (service.SyncSummary, error)
}

// Handlers bundles the dependencies of all HTTP handlers. Store may be nil;
// list endpoints then fall back to in-process state where possible. Queue and
// Events are best-effort event sinks and may also be nil.
type Handlers struct {
	Delegator Delegator
	Registry  *agent.Registry
	Health    HealthAnalyzer
	Store     database.Store
	Syncer    Syncer
	Queue     messagequeue.Queue
	Events    broadcast.Broadcaster
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Tasks
		r.Post("/tasks", h.DelegateTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/cancel", h.CancelTask)
		r.Post("/tasks/{id}/retry", h.RetryTask)

		// System status
		r.Get("/status", h.GetStatus)

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.RegisterAgent)
		r.Post("/agents/{name}/heartbeat", h.AgentHeartbeat)
		r.Post("/agents/{name}/active", h.SetAgentActive)

		// Workflows
		r.Post("/workflows", h.CreateWorkflow)
		r.Get("/workflows", h.ListWorkflows)
		r.Get("/workflows/{id}", h.GetWorkflow)

		// Upgrades
		r.Post("/upgrades", h.ScheduleUpgrade)
		r.Get("/upgrades", h.ListUpgrades)

		// Integrations
		r.Post("/integrations", h.CreateIntegration)
		r.Get("/integrations", h.ListIntegrations)
		r.Post("/integrations/sync", h.SyncIntegrations)

		// Project health
		r.Post("/health/analyze", h.AnalyzeHealth)
	})
}

// DelegateTask creates a task from the request body and enqueues it.
func (h *Handlers) DelegateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.DelegateRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Delegator.Delegate(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "failed to delegate task")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTask returns the latest known state of a task. An agent query parameter
// adds that agent's registry state to the response.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	if name := r.URL.Query().Get("agent"); name != "" {
		view, err := h.Delegator.MonitorWithAgent(r.Context(), id, name)
		if err != nil {
			writeDomainError(w, err, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	t, err := h.Delegator.Monitor(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTasks returns persisted tasks, optionally filtered by project_id.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "task listing requires a database")
		return
	}
	tasks, err := h.Store.ListTasks(r.Context(), r.URL.Query().Get("project_id"))
	if err != nil {
		writeDomainError(w, err, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CancelTask cancels a still-queued task.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	t, err := h.Delegator.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// RetryTask re-enqueues a failed task.
func (h *Handlers) RetryTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	t, err := h.Delegator.Retry(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetStatus returns the agent pool plus queue and dispatch state.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Delegator.Status(r.Context()))
}

// ListAgents returns all registered agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.List())
}

// RegisterAgent registers or replaces an agent.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	spec, ok := readJSON[agent.Spec](w, r)
	if !ok {
		return
	}

	id, err := h.Registry.Register(spec)
	if err != nil {
		writeDomainError(w, err, "failed to register agent")
		return
	}

	a, err := h.Registry.Get(spec.Name)
	if err != nil {
		writeDomainError(w, err, "failed to load registered agent")
		return
	}
	if h.Store != nil {
		_ = h.Store.SaveAgent(r.Context(), a)
	}
	h.publishAgentStatus(r.Context(), a, "registered")

	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "name": spec.Name})
}

// AgentHeartbeat refreshes an agent's heartbeat timestamp.
func (h *Handlers) AgentHeartbeat(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")

	if err := h.Registry.Heartbeat(name); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SetAgentActive toggles an agent's active status.
func (h *Handlers) SetAgentActive(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "name")

	body, ok := readJSON[struct {
		Active bool `json:"active"`
	}](w, r)
	if !ok {
		return
	}

	if err := h.Registry.SetActive(name, body.Active); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	if a, err := h.Registry.Get(name); err == nil {
		h.publishAgentStatus(r.Context(), a, "status_changed")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": body.Active})
}

// CreateWorkflow creates an autonomous workflow definition.
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[workflow.CreateRequest](w, r)
	if !ok {
		return
	}

	wf, err := h.Delegator.CreateWorkflow(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "failed to create workflow")
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

// ListWorkflows returns all workflow definitions.
func (h *Handlers) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "workflow listing requires a database")
		return
	}
	workflows, err := h.Store.ListWorkflows(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list workflows")
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

// GetWorkflow returns one workflow definition.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "workflow lookup requires a database")
		return
	}
	wf, err := h.Store.GetWorkflow(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// ScheduleUpgrade records an upgrade and enqueues its carrier task.
func (h *Handlers) ScheduleUpgrade(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[upgrade.ScheduleRequest](w, r)
	if !ok {
		return
	}

	u, err := h.Delegator.ScheduleUpgrade(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "failed to schedule upgrade")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ListUpgrades returns upgrades for a project.
func (h *Handlers) ListUpgrades(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "upgrade listing requires a database")
		return
	}
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	upgrades, err := h.Store.ListUpgrades(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err, "failed to list upgrades")
		return
	}
	writeJSON(w, http.StatusOK, upgrades)
}

// CreateIntegration records a new external integration for the batch sync job.
func (h *Handlers) CreateIntegration(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "integrations require a database")
		return
	}
	req, ok := readJSON[struct {
		Name   string         `json:"name"`
		Kind   string         `json:"kind"`
		Config map[string]any `json:"config"`
	}](w, r)
	if !ok {
		return
	}
	if req.Name == "" || req.Kind == "" {
		writeError(w, http.StatusBadRequest, "name and kind are required")
		return
	}

	i := integration.Integration{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Kind:      req.Kind,
		Config:    req.Config,
		Status:    integration.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := h.Store.CreateIntegration(r.Context(), &i); err != nil {
		writeDomainError(w, err, "failed to create integration")
		return
	}
	writeJSON(w, http.StatusCreated, i)
}

// ListIntegrations returns all recorded integrations.
func (h *Handlers) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "integrations require a database")
		return
	}
	items, err := h.Store.ListIntegrations(r.Context())
	if err != nil {
		writeDomainError(w, err, "failed to list integrations")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// SyncIntegrations runs one batch sync and returns its summary.
func (h *Handlers) SyncIntegrations(w http.ResponseWriter, r *http.Request) {
	if h.Syncer == nil {
		writeError(w, http.StatusNotImplemented, "integration sync is not configured")
		return
	}
	summary, err := h.Syncer.SyncAll(r.Context())
	if err != nil {
		writeDomainError(w, err, "integration sync failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// AnalyzeHealth analyzes a project directory.
func (h *Handlers) AnalyzeHealth(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		ProjectPath  string `json:"project_path"`
		AnalysisType string `json:"analysis_type"`
	}](w, r)
	if !ok {
		return
	}

	report, err := h.Health.Analyze(r.Context(), req.ProjectPath, req.AnalysisType)
	if err != nil {
		writeDomainError(w, err, "project path not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AgentEvent is the payload published when an agent registers or changes
// availability.
type AgentEvent struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Event  string `json:"event"`
}

// publishAgentStatus emits an AgentEvent on the queue and to the broadcast
// hub. Both sinks are best-effort.
func (h *Handlers) publishAgentStatus(ctx context.Context, a *agent.Agent, event string) {
	ev := AgentEvent{Name: a.Name, Type: a.Type, Status: string(a.Status), Event: event}

	if h.Queue != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("marshal agent event", "agent", a.Name, "error", err)
		} else if err := h.Queue.Publish(ctx, messagequeue.SubjectAgentStatus, data); err != nil {
			slog.Error("publish agent status", "agent", a.Name, "error", err)
		}
	}

	if h.Events != nil {
		h.Events.BroadcastEvent(ctx, broadcast.EventAgentStatus, ev)
	}
}
