package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/signalbox/interlock/board"
)

// CreateProjectTool creates a coordination project.
type CreateProjectTool struct {
	store board.Store
}

func NewCreateProjectTool(store board.Store) *CreateProjectTool {
	return &CreateProjectTool{store: store}
}

func (t *CreateProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("create_project",
		mcp.WithDescription("Create a new project. Projects are identified by unique names."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Unique project name")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Project description")),
	)
}

func (t *CreateProjectTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := t.store.CreateProject(name, description)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p)
}

// GetProjectTool retrieves a project by name.
type GetProjectTool struct {
	store board.Store
}

func NewGetProjectTool(store board.Store) *GetProjectTool {
	return &GetProjectTool{store: store}
}

func (t *GetProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("get_project",
		mcp.WithDescription("Get project details by name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
	)
}

func (t *GetProjectTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := t.store.GetProject(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(p)
}

// CreateTaskTool creates a task within a project.
type CreateTaskTool struct {
	store board.Store
}

func NewCreateTaskTool(store board.Store) *CreateTaskTool {
	return &CreateTaskTool{store: store}
}

func (t *CreateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task within a project"),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Name of the project")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Task name")),
		mcp.WithString("description", mcp.Required(), mcp.Description("Task description")),
		mcp.WithNumber("order", mcp.Description("Execution order, lower runs first")),
		mcp.WithArray("dependencies",
			mcp.Description("Task IDs that must be completed first"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func (t *CreateTaskTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	order := req.GetInt("order", 0)
	deps := req.GetStringSlice("dependencies", nil)

	task, err := t.store.CreateTask(projectName, name, description, order, deps)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(task)
}
