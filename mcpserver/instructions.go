package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// protocolInstructions is served both as the MCP server instructions and
// through the get_instructions tool, so agents on transports that drop
// server instructions can still discover the protocol.
const protocolInstructions = `# Interlock Agent Coordination

This MCP server coordinates multiple autonomous agents working on the same
codebase. Work is organized as projects > tasks > todo items, and file
locks prevent two agents from editing the same files at once.

## Available Tools
1. get_instructions - Get these instructions
2. create_project - Create a new project
3. get_project - Get project details
4. create_task - Create a task within a project
5. create_todo_item - Create a todo item within a task
6. insert_todo_item - Insert a todo item at a specific position
7. get_next_todo_item - Find the next claimable todo item for an agent
8. update_todo_status - Claim, complete, or cancel a todo item
9. check_file_locks - Check whether files are locked
10. lock_files - Manually lock files for exclusive access
11. unlock_files - Release manual file locks
12. get_project_status - Full project tree with completion stats
13. get_audit_trail - Chronological record of every change
14. get_completion_summary - Completed work and per-agent statistics

## Workflow
1. Create project: create_project(name="my-app", description="...")
2. Create tasks: create_task(project_name="my-app", name="Auth", description="...")
3. Create todos: create_todo_item(task_id="...", title="Login form", files=["login.tsx"])
4. Find work: get_next_todo_item(project_name="my-app", agent_id="agent-1")
5. Claim it: update_todo_status(todo_id="...", status="in_progress", agent_id="agent-1")
6. Finish it: update_todo_status(todo_id="...", status="completed", agent_id="agent-1")

## Rules
- get_next_todo_item only suggests work; nothing is yours until the claim
  in step 5 succeeds. When two agents race for the same item, exactly one
  claim wins and the loser should ask for the next item again.
- Claiming locks every file listed on the todo item. Completing or
  cancelling releases those locks automatically; never unlock them by hand.
- A todo item is only claimable when its dependencies (and its task's
  dependencies) are all completed and none of its files are locked
  elsewhere.
- Use lock_files/unlock_files only for edits outside any todo item.
  Claiming converts your own manual locks on the item's files.
- Dependencies reference IDs returned at creation time and must belong to
  the same project.

All tools return JSON with the result or an error message.`

// InstructionsTool serves the coordination protocol documentation.
type InstructionsTool struct{}

func NewInstructionsTool() *InstructionsTool {
	return &InstructionsTool{}
}

func (t *InstructionsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_instructions",
		mcp.WithDescription("Get comprehensive instructions on how to use the agent coordination system"),
	)
}

func (t *InstructionsTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(protocolInstructions), nil
}
