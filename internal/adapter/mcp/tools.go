package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/domain/upgrade"
	"github.com/buildhive/buildhive/internal/domain/workflow"
	"github.com/buildhive/buildhive/internal/service"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.delegateTool(),
		s.monitorTool(),
		s.statusTool(),
		s.scheduleUpgradeTool(),
		s.createWorkflowTool(),
		s.analyzeHealthTool(),
	)
}

func (s *Server) delegateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("delegate_to_ai_builder",
		mcplib.WithDescription("Delegate a development task to the best-matching builder agent"),
		mcplib.WithString("task_description",
			mcplib.Required(),
			mcplib.Description("What the agent should do"),
		),
		mcplib.WithString("project_id",
			mcplib.Description("Project the task belongs to"),
		),
		mcplib.WithString("priority",
			mcplib.Description("Dispatch priority: low, medium, high or urgent (default medium)"),
		),
		mcplib.WithString("tech_stack",
			mcplib.Description("Comma-separated technology stack, e.g. go,react"),
		),
		mcplib.WithString("preferred_agent",
			mcplib.Description("Agent name to prefer when it has capacity"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleDelegate,
	}
}

func (s *Server) monitorTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("monitor_ai_builder",
		mcplib.WithDescription("Get the current state of a delegated task"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("The task ID returned by delegate_to_ai_builder"),
		),
		mcplib.WithString("agent_name",
			mcplib.Description("Also include this agent's current state (defaults to the assigned agent)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleMonitor,
	}
}

func (s *Server) statusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_ai_builder_status",
		mcplib.WithDescription("Get the agent pool, queue depth and running task count"),
		mcplib.WithString("agent_name",
			mcplib.Description("Restrict the report to one agent"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleStatus,
	}
}

func (s *Server) scheduleUpgradeTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("schedule_autonomous_upgrade",
		mcplib.WithDescription("Schedule an autonomous upgrade; the work is carried by a high-priority task"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("Project to upgrade"),
		),
		mcplib.WithString("upgrade_type",
			mcplib.Required(),
			mcplib.Description("Kind of upgrade, e.g. dependencies, security, performance"),
		),
		mcplib.WithString("schedule",
			mcplib.Description("Optional schedule hint, e.g. immediate or a cron expression"),
		),
		mcplib.WithObject("requirements",
			mcplib.Description("Optional free-form upgrade requirements"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleScheduleUpgrade,
	}
}

func (s *Server) createWorkflowTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_autonomous_workflow",
		mcplib.WithDescription("Create an autonomous workflow from triggers and actions"),
		mcplib.WithString("workflow_name",
			mcplib.Required(),
			mcplib.Description("Human-readable workflow name"),
		),
		mcplib.WithArray("triggers",
			mcplib.Required(),
			mcplib.Description("Trigger definitions, each with a type and optional config"),
		),
		mcplib.WithArray("actions",
			mcplib.Required(),
			mcplib.Description("Action definitions, each with a type and optional config"),
		),
		mcplib.WithArray("conditions",
			mcplib.Description("Optional conditions gating execution"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCreateWorkflow,
	}
}

func (s *Server) analyzeHealthTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("analyze_project_health",
		mcplib.WithDescription("Analyze a project directory and return a scored health report"),
		mcplib.WithString("project_path",
			mcplib.Required(),
			mcplib.Description("Absolute path of the project to analyze"),
		),
		mcplib.WithString("analysis_type",
			mcplib.Description("quick (default) or full; full also counts TODO markers"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleAnalyzeHealth,
	}
}

func (s *Server) handleDelegate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Delegator == nil {
		return mcplib.NewToolResultError("delegator not configured"), nil
	}
	args := req.GetArguments()
	description, ok := args["task_description"].(string)
	if !ok || description == "" {
		return mcplib.NewToolResultError("task_description is required"), nil
	}

	dreq := service.DelegateRequest{
		Description: description,
		Context: task.Context{
			ProjectID: stringArg(args, "project_id"),
			Priority:  stringArg(args, "priority"),
			TechStack: splitCSV(stringArg(args, "tech_stack")),
		},
		PreferredAgent: stringArg(args, "preferred_agent"),
	}

	t, err := s.deps.Delegator.Delegate(ctx, dreq)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to delegate task", err), nil
	}
	return marshalResult(t)
}

func (s *Server) handleMonitor(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Delegator == nil {
		return mcplib.NewToolResultError("delegator not configured"), nil
	}
	args := req.GetArguments()
	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}

	if name := stringArg(args, "agent_name"); name != "" {
		view, err := s.deps.Delegator.MonitorWithAgent(ctx, taskID, name)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr(
				fmt.Sprintf("failed to monitor task %s", taskID), err,
			), nil
		}
		return marshalResult(view)
	}

	t, err := s.deps.Delegator.Monitor(ctx, taskID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to monitor task %s", taskID), err,
		), nil
	}
	return marshalResult(t)
}

func (s *Server) handleStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Delegator == nil {
		return mcplib.NewToolResultError("delegator not configured"), nil
	}
	report := s.deps.Delegator.Status(ctx)

	if name := stringArg(req.GetArguments(), "agent_name"); name != "" {
		for _, a := range report.Agents {
			if a.Name == name {
				report.Agents = append(report.Agents[:0:0], a)
				return marshalResult(report)
			}
		}
		return mcplib.NewToolResultError(fmt.Sprintf("unknown agent %q", name)), nil
	}
	return marshalResult(report)
}

func (s *Server) handleScheduleUpgrade(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Delegator == nil {
		return mcplib.NewToolResultError("delegator not configured"), nil
	}
	args := req.GetArguments()

	ureq := upgrade.ScheduleRequest{
		ProjectID:   stringArg(args, "project_id"),
		UpgradeType: stringArg(args, "upgrade_type"),
		Schedule:    stringArg(args, "schedule"),
	}
	if reqs, ok := args["requirements"].(map[string]any); ok {
		ureq.Requirements = reqs
	}

	u, err := s.deps.Delegator.ScheduleUpgrade(ctx, ureq)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to schedule upgrade", err), nil
	}
	return marshalResult(u)
}

func (s *Server) handleCreateWorkflow(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Delegator == nil {
		return mcplib.NewToolResultError("delegator not configured"), nil
	}
	args := req.GetArguments()

	wreq := workflow.CreateRequest{
		Name: stringArg(args, "workflow_name"),
	}
	if err := decodeArg(args["triggers"], &wreq.Triggers); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid triggers", err), nil
	}
	if err := decodeArg(args["actions"], &wreq.Actions); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid actions", err), nil
	}
	if err := decodeArg(args["conditions"], &wreq.Conditions); err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid conditions", err), nil
	}

	w, err := s.deps.Delegator.CreateWorkflow(ctx, wreq)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to create workflow", err), nil
	}
	return marshalResult(w)
}

func (s *Server) handleAnalyzeHealth(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Health == nil {
		return mcplib.NewToolResultError("health analyzer not configured"), nil
	}
	args := req.GetArguments()
	path, ok := args["project_path"].(string)
	if !ok || path == "" {
		return mcplib.NewToolResultError("project_path is required"), nil
	}

	report, err := s.deps.Health.Analyze(ctx, path, stringArg(args, "analysis_type"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to analyze project", err), nil
	}
	return marshalResult(report)
}

// stringArg returns the named argument as a string, or "" when absent.
func stringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return v
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// decodeArg re-marshals an untyped JSON argument into a typed destination.
func decodeArg(raw any, dst any) error {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}
