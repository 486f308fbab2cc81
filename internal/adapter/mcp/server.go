// Package mcp exposes BuildHive's delegation operations as Model Context
// Protocol tools so AI assistants can drive the system directly.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/buildhive/buildhive/internal/domain/health"
	"github.com/buildhive/buildhive/internal/domain/task"
	"github.com/buildhive/buildhive/internal/domain/upgrade"
	"github.com/buildhive/buildhive/internal/domain/workflow"
	"github.com/buildhive/buildhive/internal/service"
)

// Delegator is the slice of the delegation service the tools need.
type Delegator interface {
	Delegate(ctx context.Context, req service.DelegateRequest) (task.Task, error)
	Monitor(ctx context.Context, id string) (task.Task, error)
	MonitorWithAgent(ctx context.Context, id, agentName string) (service.MonitorView, error)
	Status(ctx context.Context) service.StatusReport
	ScheduleUpgrade(ctx context.Context, req upgrade.ScheduleRequest) (upgrade.Upgrade, error)
	CreateWorkflow(ctx context.Context, req workflow.CreateRequest) (workflow.Workflow, error)
}

// HealthAnalyzer analyzes a project directory.
type HealthAnalyzer interface {
	Analyze(ctx context.Context, path, analysisType string) (health.Report, error)
}

// ServerConfig holds the MCP server's listen address and identity.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// ServerDeps holds the service dependencies the tools call into.
type ServerDeps struct {
	Delegator Delegator
	Health    HealthAnalyzer
}

// Server wraps an MCP server exposing the BuildHive tool surface.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *mcpserver.StreamableHTTPServer
}

// NewServer creates an MCP server with all tools registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start serves MCP over streamable HTTP in a background goroutine.
func (s *Server) Start() error {
	s.httpSrv = mcpserver.NewStreamableHTTPServer(s.mcpServer)
	go func() {
		slog.Info("mcp server listening", "addr", s.cfg.Addr)
		if err := s.httpSrv.Start(s.cfg.Addr); err != nil {
			slog.Error("mcp server stopped", "error", err)
		}
	}()
	return nil
}

// Stop shuts the MCP HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// toolResultJSON wraps a JSON string as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
