package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/signalbox/interlock/board"
)

// ProjectStatusTool returns the full project tree with completion stats.
type ProjectStatusTool struct {
	store board.Store
}

func NewProjectStatusTool(store board.Store) *ProjectStatusTool {
	return &ProjectStatusTool{store: store}
}

func (t *ProjectStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("get_project_status",
		mcp.WithDescription("Get comprehensive status of a project including all tasks and todo items"),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Name of the project")),
	)
}

func (t *ProjectStatusTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := t.store.ProjectStatus(projectName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(status)
}

// AuditTrailTool queries a project's audit history.
type AuditTrailTool struct {
	store board.Store
}

func NewAuditTrailTool(store board.Store) *AuditTrailTool {
	return &AuditTrailTool{store: store}
}

func (t *AuditTrailTool) Definition() mcp.Tool {
	return mcp.NewTool("get_audit_trail",
		mcp.WithDescription("Get the chronological audit trail of a project: every creation, status change, assignment, and lock event"),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Name of the project")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events to return, newest first (default 50)")),
		mcp.WithString("event_type", mcp.Description("Only events of this type, e.g. status_change or file_lock")),
		mcp.WithString("agent_id", mcp.Description("Only events recorded by this agent")),
	)
}

func (t *AuditTrailTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filter := board.AuditFilter{
		Type:    board.EventType(req.GetString("event_type", "")),
		AgentID: req.GetString("agent_id", ""),
		Limit:   req.GetInt("limit", 0),
	}

	trail, err := t.store.AuditTrail(projectName, filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(trail)
}

// CompletionSummaryTool reports completed work and per-agent statistics.
type CompletionSummaryTool struct {
	store board.Store
}

func NewCompletionSummaryTool(store board.Store) *CompletionSummaryTool {
	return &CompletionSummaryTool{store: store}
}

func (t *CompletionSummaryTool) Definition() mcp.Tool {
	return mcp.NewTool("get_completion_summary",
		mcp.WithDescription("Get a summary of completed work in a project: who finished what, when, and overall progress"),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Name of the project")),
	)
}

func (t *CompletionSummaryTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	summary, err := t.store.CompletionSummary(projectName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summary)
}
