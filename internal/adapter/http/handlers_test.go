package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/buildhive/buildhive/internal/domain"
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

// --- Mocks ---

type mockDelegator struct {
	tasks map[string]task.Task
}

var _ Delegator = (*mockDelegator)(nil)

func (m *mockDelegator) Delegate(_ context.Context, req service.DelegateRequest) (task.Task, error) {
	if err := req.Validate(); err != nil {
		return task.Task{}, err
	}
	return task.Task{
		ID:          "task-1",
		Description: req.Description,
		Type:        task.DeriveType(req.Description),
		Priority:    task.ParsePriority(req.Context.Priority),
		Status:      task.StatusQueued,
	}, nil
}

func (m *mockDelegator) Monitor(_ context.Context, id string) (task.Task, error) {
	if t, ok := m.tasks[id]; ok {
		return t, nil
	}
	return task.Task{}, domain.ErrNotFound
}

func (m *mockDelegator) MonitorWithAgent(ctx context.Context, id, agentName string) (service.MonitorView, error) {
	t, err := m.Monitor(ctx, id)
	if err != nil {
		return service.MonitorView{}, err
	}
	if agentName == "" {
		agentName = t.AgentName
	}
	view := service.MonitorView{Task: t}
	if agentName != "" {
		view.Agent = &agent.Agent{Name: agentName, Status: agent.StatusActive}
	}
	return view, nil
}

func (m *mockDelegator) Cancel(_ context.Context, id string) (task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return task.Task{}, domain.ErrNotFound
	}
	if t.Status != task.StatusQueued {
		return task.Task{}, task.ErrCancellationRejected
	}
	t.Status = task.StatusCancelled
	return t, nil
}

func (m *mockDelegator) Retry(_ context.Context, id string) (task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return task.Task{}, domain.ErrNotFound
	}
	if t.Status != task.StatusFailed {
		return task.Task{}, task.ErrInvalidTransition
	}
	t.Status = task.StatusQueued
	t.RetryCount++
	return t, nil
}

func (m *mockDelegator) Status(_ context.Context) service.StatusReport {
	return service.StatusReport{QueueDepth: 3, Running: 2}
}

func (m *mockDelegator) ScheduleUpgrade(_ context.Context, req upgrade.ScheduleRequest) (upgrade.Upgrade, error) {
	if err := req.Validate(); err != nil {
		return upgrade.Upgrade{}, err
	}
	return upgrade.Upgrade{ID: "up-1", ProjectID: req.ProjectID, TaskID: "task-9"}, nil
}

func (m *mockDelegator) CreateWorkflow(_ context.Context, req workflow.CreateRequest) (workflow.Workflow, error) {
	if err := req.Validate(); err != nil {
		return workflow.Workflow{}, err
	}
	return workflow.Workflow{ID: "wf-1", Name: req.Name}, nil
}

// captureQueue records the subjects published to it.
type captureQueue struct {
	mu       sync.Mutex
	subjects []string
}

var _ messagequeue.Queue = (*captureQueue)(nil)

func (q *captureQueue) Publish(_ context.Context, subject string, _ []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subjects = append(q.subjects, subject)
	return nil
}

func (q *captureQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *captureQueue) Drain() error      { return nil }
func (q *captureQueue) Close() error      { return nil }
func (q *captureQueue) IsConnected() bool { return true }

func (q *captureQueue) published(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// captureBroadcaster records broadcast event types.
type captureBroadcaster struct {
	events []string
}

var _ broadcast.Broadcaster = (*captureBroadcaster)(nil)

func (b *captureBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.events = append(b.events, eventType)
}

// integrationStore implements the integration slice of database.Store.
type integrationStore struct {
	database.Store
	mu    sync.Mutex
	items []integration.Integration
}

func (s *integrationStore) CreateIntegration(_ context.Context, i *integration.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, *i)
	return nil
}

func (s *integrationStore) ListIntegrations(context.Context) ([]integration.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]integration.Integration(nil), s.items...), nil
}

// stubSyncer returns a fixed batch summary.
type stubSyncer struct {
	summary service.SyncSummary
}

func (s stubSyncer) SyncAll(context.Context) (service.SyncSummary, error) {
	return s.summary, nil
}

type mockHealthAnalyzer struct{}

func (mockHealthAnalyzer) Analyze(_ context.Context, path, analysisType string) (health.Report, error) {
	if path == "" {
		return health.Report{}, domain.ErrValidation
	}
	return health.Report{ProjectPath: path, AnalysisType: analysisType, Score: 50}, nil
}

func testRouter(deleg Delegator) (*chi.Mux, *agent.Registry) {
	registry := agent.NewRegistry()
	r := chi.NewRouter()
	MountRoutes(r, &Handlers{
		Delegator: deleg,
		Registry:  registry,
		Health:    mockHealthAnalyzer{},
	})
	return r, registry
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &reqBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestDelegateTask(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks", map[string]any{
		"task_description": "deploy the payment service",
		"project_context":  map[string]any{"priority": "urgent"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != task.TypeDeploy {
		t.Errorf("type = %q, want deploy", got.Type)
	}
	if got.Priority != task.PriorityUrgent {
		t.Errorf("priority = %q, want urgent", got.Priority)
	}
}

func TestDelegateTask_MissingDescription(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetTask_WithAgentView(t *testing.T) {
	deleg := &mockDelegator{tasks: map[string]task.Task{
		"t1": {ID: "t1", Status: task.StatusInProgress, AgentName: "atlas"},
	}}
	router, _ := testRouter(deleg)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/tasks/t1?agent=atlas", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var view service.MonitorView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view.Task.ID != "t1" {
		t.Errorf("task id = %q, want t1", view.Task.ID)
	}
	if view.Agent == nil || view.Agent.Name != "atlas" {
		t.Errorf("agent view = %+v, want atlas", view.Agent)
	}
}

func TestCancelTask_Conflict(t *testing.T) {
	deleg := &mockDelegator{tasks: map[string]task.Task{
		"t1": {ID: "t1", Status: task.StatusInProgress},
	}}
	router, _ := testRouter(deleg)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks/t1/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRetryTask(t *testing.T) {
	deleg := &mockDelegator{tasks: map[string]task.Task{
		"t1": {ID: "t1", Status: task.StatusFailed},
	}}
	router, _ := testRouter(deleg)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/tasks/t1/retry", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RetryCount != 1 || got.Status != task.StatusQueued {
		t.Errorf("got %+v, want queued with retry_count 1", got)
	}
}

func TestGetStatus(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var report service.StatusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.QueueDepth != 3 || report.Running != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestRegisterAndListAgents(t *testing.T) {
	router, registry := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/agents", agent.Spec{
		Name:         "atlas",
		Type:         "fullstack",
		Capabilities: []string{"code_generation"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if registry.Count() != 1 {
		t.Fatalf("registry count = %d, want 1", registry.Count())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/agents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var agents []agent.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "atlas" {
		t.Errorf("agents = %+v", agents)
	}
}

func TestRegisterAgent_Validation(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/agents", agent.Spec{Type: "backend"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSetAgentActive(t *testing.T) {
	router, registry := testRouter(&mockDelegator{})
	if _, err := registry.Register(agent.Spec{Name: "pixel", Type: "frontend"}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, router, http.MethodPost, "/api/v1/agents/pixel/active", map[string]bool{"active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	a, err := registry.Get("pixel")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != agent.StatusInactive {
		t.Errorf("status = %q, want inactive", a.Status)
	}
}

func TestAgentRoutes_PublishStatusEvents(t *testing.T) {
	queue := &captureQueue{}
	events := &captureBroadcaster{}
	router := chi.NewRouter()
	MountRoutes(router, &Handlers{
		Delegator: &mockDelegator{},
		Registry:  agent.NewRegistry(),
		Health:    mockHealthAnalyzer{},
		Queue:     queue,
		Events:    events,
	})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/agents", agent.Spec{Name: "atlas", Type: "general"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if got := queue.published(messagequeue.SubjectAgentStatus); got != 1 {
		t.Errorf("agent status events on queue = %d, want 1", got)
	}
	if len(events.events) != 1 || events.events[0] != broadcast.EventAgentStatus {
		t.Errorf("broadcast events = %v, want one agent.status", events.events)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/agents/atlas/active", map[string]bool{"active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := queue.published(messagequeue.SubjectAgentStatus); got != 2 {
		t.Errorf("agent status events on queue = %d, want 2 after toggle", got)
	}
}

func TestAgentHeartbeat_NotFound(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/agents/ghost/heartbeat", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScheduleUpgrade_Validation(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/upgrades", map[string]any{
		"project_id": "p1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateWorkflow(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/workflows", workflow.CreateRequest{
		Name:     "nightly",
		Triggers: []workflow.Trigger{{Type: "schedule"}},
		Actions:  []workflow.Action{{Type: "run_tests"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAndListIntegrations(t *testing.T) {
	store := &integrationStore{}
	router := chi.NewRouter()
	MountRoutes(router, &Handlers{
		Delegator: &mockDelegator{},
		Registry:  agent.NewRegistry(),
		Store:     store,
	})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/integrations", map[string]any{
		"name":   "main-repo",
		"kind":   "github",
		"config": map[string]any{"owner": "buildhive"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created integration.Integration
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ID == "" || created.Status != integration.StatusPending {
		t.Errorf("created = %+v, want pending with an id", created)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/integrations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var items []integration.Integration
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 1 || items[0].Name != "main-repo" {
		t.Errorf("items = %+v, want the created integration", items)
	}
}

func TestCreateIntegration_Validation(t *testing.T) {
	router := chi.NewRouter()
	MountRoutes(router, &Handlers{
		Delegator: &mockDelegator{},
		Registry:  agent.NewRegistry(),
		Store:     &integrationStore{},
	})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/integrations", map[string]any{"name": "no-kind"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateIntegration_NoStore(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/integrations", map[string]any{
		"name": "main-repo", "kind": "github",
	})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestSyncIntegrations(t *testing.T) {
	router := chi.NewRouter()
	MountRoutes(router, &Handlers{
		Delegator: &mockDelegator{},
		Registry:  agent.NewRegistry(),
		Syncer:    stubSyncer{summary: service.SyncSummary{Total: 3, Succeeded: 2, Failed: 1}},
	})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/integrations/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var summary service.SyncSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if summary.Total != 3 || summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestSyncIntegrations_NotConfigured(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/integrations/sync", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestAnalyzeHealth(t *testing.T) {
	router, _ := testRouter(&mockDelegator{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/health/analyze", map[string]string{
		"project_path":  "/tmp/project",
		"analysis_type": "quick",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var report health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Score != 50 {
		t.Errorf("score = %d, want 50", report.Score)
	}
}
