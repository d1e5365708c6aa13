package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/signalbox/interlock/board"
)

// CreateTodoTool creates a todo item at the end of a task.
type CreateTodoTool struct {
	store board.Store
}

func NewCreateTodoTool(store board.Store) *CreateTodoTool {
	return &CreateTodoTool{store: store}
}

func (t *CreateTodoTool) Definition() mcp.Tool {
	return mcp.NewTool("create_todo_item",
		mcp.WithDescription("Create a new todo item within a task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the parent task")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Todo item title")),
		mcp.WithString("description", mcp.Description("Detailed description")),
		mcp.WithNumber("order", mcp.Description("Execution order, lower runs first")),
		mcp.WithArray("dependencies",
			mcp.Description("Todo item IDs that must be completed first"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("files",
			mcp.Description("File paths that will be modified"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func (t *CreateTodoTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	item, err := t.store.CreateTodo(
		taskID,
		title,
		req.GetString("description", ""),
		req.GetInt("order", 0),
		req.GetStringSlice("dependencies", nil),
		req.GetStringSlice("files", nil),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(item)
}

// InsertTodoTool creates a todo item at a specific position in its task.
type InsertTodoTool struct {
	store board.Store
}

func NewInsertTodoTool(store board.Store) *InsertTodoTool {
	return &InsertTodoTool{store: store}
}

func (t *InsertTodoTool) Definition() mcp.Tool {
	return mcp.NewTool("insert_todo_item",
		mcp.WithDescription("Insert a new todo item at a specific position in the order"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the parent task")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Todo item title")),
		mcp.WithString("description", mcp.Description("Detailed description")),
		mcp.WithString("after_todo_id", mcp.Description("Insert after this todo item ID; omit to insert at the head")),
		mcp.WithArray("dependencies",
			mcp.Description("Todo item IDs that must be completed first"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("files",
			mcp.Description("File paths that will be modified"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func (t *InsertTodoTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	item, err := t.store.InsertTodo(
		taskID,
		title,
		req.GetString("description", ""),
		req.GetString("after_todo_id", ""),
		req.GetStringSlice("dependencies", nil),
		req.GetStringSlice("files", nil),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(item)
}

// NextTodoTool finds the next claimable todo item for an agent. The scan
// is read-only: the agent still has to win the claim.
type NextTodoTool struct {
	store board.Store
}

func NewNextTodoTool(store board.Store) *NextTodoTool {
	return &NextTodoTool{store: store}
}

func (t *NextTodoTool) Definition() mcp.Tool {
	return mcp.NewTool("get_next_todo_item",
		mcp.WithDescription("Find the next available todo item that can be worked on. Claim it with update_todo_status(status=\"in_progress\") before starting."),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Name of the project")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Unique identifier for the agent")),
	)
}

func (t *NextTodoTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	item, err := t.store.NextAvailable(projectName, agentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if item == nil {
		return jsonResult(map[string]string{"message": "No available todo items"})
	}
	return jsonResult(item)
}

// UpdateStatusTool transitions a todo item through its lifecycle.
type UpdateStatusTool struct {
	store board.Store
}

func NewUpdateStatusTool(store board.Store) *UpdateStatusTool {
	return &UpdateStatusTool{store: store}
}

func (t *UpdateStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("update_todo_status",
		mcp.WithDescription("Update the status of a todo item. Setting in_progress claims the item and locks its files; completed or cancelled releases them."),
		mcp.WithString("todo_id", mcp.Required(), mcp.Description("ID of the todo item")),
		mcp.WithString("status", mcp.Required(),
			mcp.Description("New status"),
			mcp.Enum("pending", "in_progress", "completed", "cancelled"),
		),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("ID of the agent making the update")),
	)
}

func (t *UpdateStatusTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	todoID, err := req.RequireString("todo_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawStatus, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := board.ParseStatus(rawStatus)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := t.store.SetStatus(todoID, status, agentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(item)
}
