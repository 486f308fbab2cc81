package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildhive/buildhive/internal/domain"
	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/integration"
	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/domain/upgrade"
	"github.com/buildhive/buildhive/internal/domain/workflow"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Agents ---

func (s *Store) SaveAgent(ctx context.Context, a *agent.Agent) error {
	configJSON, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	perfJSON, err := json.Marshal(a.Performance)
	if err != nil {
		return fmt.Errorf("marshal agent performance: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (id, name, type, status, capabilities, config, current_tasks, performance, last_heartbeat, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			capabilities = EXCLUDED.capabilities,
			config = EXCLUDED.config,
			current_tasks = EXCLUDED.current_tasks,
			performance = EXCLUDED.performance,
			last_heartbeat = EXCLUDED.last_heartbeat`,
		a.ID, a.Name, a.Type, string(a.Status), pgTextArray(a.Capabilities),
		configJSON, a.CurrentTasks, perfJSON, a.LastHeartbeat, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save agent %s: %w", a.Name, err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, type, status, capabilities, config, current_tasks, performance, last_heartbeat, created_at
		 FROM agents WHERE id = $1`, id)

	a, err := scanAgent(row)
	if err != nil {
		return nil, notFoundWrap(err, "get agent %s", id)
	}
	return &a, nil
}

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, type, status, capabilities, config, current_tasks, performance, last_heartbeat, created_at
		 FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return orEmpty(agents), rows.Err()
}

func scanAgent(row scannable) (agent.Agent, error) {
	var (
		a          agent.Agent
		status     string
		configJSON []byte
		perfJSON   []byte
	)
	err := row.Scan(&a.ID, &a.Name, &a.Type, &status, &a.Capabilities,
		&configJSON, &a.CurrentTasks, &perfJSON, &a.LastHeartbeat, &a.CreatedAt)
	if err != nil {
		return agent.Agent{}, err
	}
	a.Status = agent.Status(status)
	if err := json.Unmarshal(configJSON, &a.Config); err != nil {
		return agent.Agent{}, fmt.Errorf("unmarshal agent config: %w", err)
	}
	if err := json.Unmarshal(perfJSON, &a.Performance); err != nil {
		return agent.Agent{}, fmt.Errorf("unmarshal agent performance: %w", err)
	}
	return a, nil
}

// --- Tasks ---

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	contextJSON, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("marshal task context: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tasks (id, project_id, description, type, priority, status, progress, result, error,
			retry_count, agent_id, agent_name, preferred_agent, context, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID, t.ProjectID, t.Description, string(t.Type), string(t.Priority), string(t.Status),
		t.Progress, t.Result, t.Error, t.RetryCount, t.AgentID, t.AgentName, t.PreferredAgent,
		contextJSON, t.CreatedAt, nullTimePtr(t.StartedAt), nullTimePtr(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, description, type, priority, status, progress, result, error,
			retry_count, agent_id, agent_name, preferred_agent, context, created_at, started_at, completed_at
		 FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, projectID string) ([]task.Task, error) {
	query := `SELECT id, project_id, description, type, priority, status, progress, result, error,
			retry_count, agent_id, agent_name, preferred_agent, context, created_at, started_at, completed_at
		 FROM tasks`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return orEmpty(tasks), rows.Err()
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, progress = $3, result = $4, error = $5, retry_count = $6,
			agent_id = $7, agent_name = $8, started_at = $9, completed_at = $10
		 WHERE id = $1`,
		t.ID, string(t.Status), t.Progress, t.Result, t.Error, t.RetryCount,
		t.AgentID, t.AgentName, nullTimePtr(t.StartedAt), nullTimePtr(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

func scanTask(row scannable) (task.Task, error) {
	var (
		t           task.Task
		typ         string
		priority    string
		status      string
		contextJSON []byte
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.Description, &typ, &priority, &status,
		&t.Progress, &t.Result, &t.Error, &t.RetryCount, &t.AgentID, &t.AgentName,
		&t.PreferredAgent, &contextJSON, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return task.Task{}, err
	}
	t.Type = task.Type(typ)
	t.Priority = task.Priority(priority)
	t.Status = task.Status(status)
	if err := json.Unmarshal(contextJSON, &t.Context); err != nil {
		return task.Task{}, fmt.Errorf("unmarshal task context: %w", err)
	}
	return t, nil
}

// --- Workflows ---

func (s *Store) CreateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	triggersJSON, err := json.Marshal(orEmpty(w.Triggers))
	if err != nil {
		return fmt.Errorf("marshal workflow triggers: %w", err)
	}
	actionsJSON, err := json.Marshal(orEmpty(w.Actions))
	if err != nil {
		return fmt.Errorf("marshal workflow actions: %w", err)
	}
	conditionsJSON, err := json.Marshal(orEmpty(w.Conditions))
	if err != nil {
		return fmt.Errorf("marshal workflow conditions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflows (id, name, triggers, actions, conditions, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.Name, triggersJSON, actionsJSON, conditionsJSON, w.Status, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create workflow %s: %w", w.ID, err)
	}
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, triggers, actions, conditions, status, created_at
		 FROM workflows WHERE id = $1`, id)

	w, err := scanWorkflow(row)
	if err != nil {
		return nil, notFoundWrap(err, "get workflow %s", id)
	}
	return &w, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, triggers, actions, conditions, status, created_at
		 FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return orEmpty(workflows), rows.Err()
}

func scanWorkflow(row scannable) (workflow.Workflow, error) {
	var (
		w              workflow.Workflow
		triggersJSON   []byte
		actionsJSON    []byte
		conditionsJSON []byte
	)
	err := row.Scan(&w.ID, &w.Name, &triggersJSON, &actionsJSON, &conditionsJSON, &w.Status, &w.CreatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if err := json.Unmarshal(triggersJSON, &w.Triggers); err != nil {
		return workflow.Workflow{}, fmt.Errorf("unmarshal workflow triggers: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &w.Actions); err != nil {
		return workflow.Workflow{}, fmt.Errorf("unmarshal workflow actions: %w", err)
	}
	if err := json.Unmarshal(conditionsJSON, &w.Conditions); err != nil {
		return workflow.Workflow{}, fmt.Errorf("unmarshal workflow conditions: %w", err)
	}
	return w, nil
}

// --- Upgrades ---

func (s *Store) CreateUpgrade(ctx context.Context, u *upgrade.Upgrade) error {
	reqJSON, err := json.Marshal(u.Requirements)
	if err != nil {
		return fmt.Errorf("marshal upgrade requirements: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO upgrades (id, project_id, upgrade_type, requirements, schedule, task_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.ProjectID, u.UpgradeType, reqJSON, u.Schedule, u.TaskID, u.Status, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create upgrade %s: %w", u.ID, err)
	}
	return nil
}

func (s *Store) ListUpgrades(ctx context.Context, projectID string) ([]upgrade.Upgrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, upgrade_type, requirements, schedule, task_id, status, created_at
		 FROM upgrades WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list upgrades: %w", err)
	}
	defer rows.Close()

	var upgrades []upgrade.Upgrade
	for rows.Next() {
		var (
			u       upgrade.Upgrade
			reqJSON []byte
		)
		err := rows.Scan(&u.ID, &u.ProjectID, &u.UpgradeType, &reqJSON, &u.Schedule, &u.TaskID, &u.Status, &u.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reqJSON, &u.Requirements); err != nil {
			return nil, fmt.Errorf("unmarshal upgrade requirements: %w", err)
		}
		upgrades = append(upgrades, u)
	}
	return orEmpty(upgrades), rows.Err()
}

// --- Integrations ---

func (s *Store) CreateIntegration(ctx context.Context, i *integration.Integration) error {
	configJSON, err := json.Marshal(i.Config)
	if err != nil {
		return fmt.Errorf("marshal integration config: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO integrations (id, name, kind, config, status, last_synced_at, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		i.ID, i.Name, i.Kind, configJSON, i.Status, nullTimePtr(i.LastSyncedAt), i.LastError, i.CreatedAt)
	if err != nil {
		return fmt.Errorf("create integration %s: %w", i.ID, err)
	}
	return nil
}

func (s *Store) ListIntegrations(ctx context.Context) ([]integration.Integration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, kind, config, status, last_synced_at, last_error, created_at
		 FROM integrations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []integration.Integration
	for rows.Next() {
		var (
			i          integration.Integration
			configJSON []byte
		)
		err := rows.Scan(&i.ID, &i.Name, &i.Kind, &configJSON, &i.Status, &i.LastSyncedAt, &i.LastError, &i.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(configJSON, &i.Config); err != nil {
			return nil, fmt.Errorf("unmarshal integration config: %w", err)
		}
		integrations = append(integrations, i)
	}
	return orEmpty(integrations), rows.Err()
}

func (s *Store) UpdateIntegrationSync(ctx context.Context, id string, syncedAt time.Time, syncErr string) error {
	status := integration.StatusConnected
	if syncErr != "" {
		status = integration.StatusError
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE integrations SET status = $2, last_synced_at = $3, last_error = $4 WHERE id = $1`,
		id, status, syncedAt, syncErr)
	if err != nil {
		return fmt.Errorf("update integration sync %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update integration sync %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
