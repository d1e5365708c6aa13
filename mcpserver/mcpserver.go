// Package mcpserver exposes the coordination store to agents over the
// Model Context Protocol. This is the composition root: it creates the
// MCP server instance and registers every tool against a board.Store.
package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/signalbox/interlock/board"
)

// New creates the Interlock MCP server with all coordination tools
// registered.
func New(store board.Store, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"interlock",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(protocolInstructions),
	)

	instructions := NewInstructionsTool()
	s.AddTool(instructions.Definition(), instructions.Handle)

	createProject := NewCreateProjectTool(store)
	s.AddTool(createProject.Definition(), createProject.Handle)

	getProject := NewGetProjectTool(store)
	s.AddTool(getProject.Definition(), getProject.Handle)

	createTask := NewCreateTaskTool(store)
	s.AddTool(createTask.Definition(), createTask.Handle)

	createTodo := NewCreateTodoTool(store)
	s.AddTool(createTodo.Definition(), createTodo.Handle)

	insertTodo := NewInsertTodoTool(store)
	s.AddTool(insertTodo.Definition(), insertTodo.Handle)

	nextTodo := NewNextTodoTool(store)
	s.AddTool(nextTodo.Definition(), nextTodo.Handle)

	updateStatus := NewUpdateStatusTool(store)
	s.AddTool(updateStatus.Definition(), updateStatus.Handle)

	checkLocks := NewCheckLocksTool(store)
	s.AddTool(checkLocks.Definition(), checkLocks.Handle)

	lockFiles := NewLockFilesTool(store)
	s.AddTool(lockFiles.Definition(), lockFiles.Handle)

	unlockFiles := NewUnlockFilesTool(store)
	s.AddTool(unlockFiles.Definition(), unlockFiles.Handle)

	projectStatus := NewProjectStatusTool(store)
	s.AddTool(projectStatus.Definition(), projectStatus.Handle)

	auditTrail := NewAuditTrailTool(store)
	s.AddTool(auditTrail.Definition(), auditTrail.Handle)

	completion := NewCompletionSummaryTool(store)
	s.AddTool(completion.Definition(), completion.Handle)

	return s
}

// jsonResult marshals v into an indented text result, the shape agents
// parse back out of tool responses.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
