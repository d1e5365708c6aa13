package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/signalbox/interlock/board"
)

// checkLocksResult reports lock holders for a set of paths. Paths absent
// from LockedFiles are free.
type checkLocksResult struct {
	CheckedFiles []string                   `json:"checked_files"`
	LockedFiles  map[string]*board.FileLock `json:"locked_files"`
	AllAvailable bool                       `json:"all_available"`
}

type lockFilesResult struct {
	LockedFiles []string `json:"locked_files"`
	LockedBy    string   `json:"locked_by"`
}

type unlockFilesResult struct {
	UnlockedFiles []string `json:"unlocked_files"`
	AgentID       string   `json:"agent_id"`
}

// CheckLocksTool reports which of the given files are locked.
type CheckLocksTool struct {
	store board.Store
}

func NewCheckLocksTool(store board.Store) *CheckLocksTool {
	return &CheckLocksTool{store: store}
}

func (t *CheckLocksTool) Definition() mcp.Tool {
	return mcp.NewTool("check_file_locks",
		mcp.WithDescription("Check if files are locked before modifying them"),
		mcp.WithArray("files", mcp.Required(),
			mcp.Description("File paths to check"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

func (t *CheckLocksTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files := req.GetStringSlice("files", nil)

	held, err := t.store.CheckFileLocks(files)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if held == nil {
		held = map[string]*board.FileLock{}
	}
	return jsonResult(checkLocksResult{
		CheckedFiles: files,
		LockedFiles:  held,
		AllAvailable: len(held) == 0,
	})
}

// LockFilesTool takes manual locks for an agent working outside a todo
// item.
type LockFilesTool struct {
	store board.Store
}

func NewLockFilesTool(store board.Store) *LockFilesTool {
	return &LockFilesTool{store: store}
}

func (t *LockFilesTool) Definition() mcp.Tool {
	return mcp.NewTool("lock_files",
		mcp.WithDescription("Lock files for exclusive modification. All paths lock together or the call fails."),
		mcp.WithArray("files", mcp.Required(),
			mcp.Description("File paths to lock"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("ID of the agent locking the files")),
	)
}

func (t *LockFilesTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files := req.GetStringSlice("files", nil)

	if err := t.store.LockFiles(files, agentID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(lockFilesResult{
		LockedFiles: files,
		LockedBy:    agentID,
	})
}

// UnlockFilesTool releases manual locks held by an agent.
type UnlockFilesTool struct {
	store board.Store
}

func NewUnlockFilesTool(store board.Store) *UnlockFilesTool {
	return &UnlockFilesTool{store: store}
}

func (t *UnlockFilesTool) Definition() mcp.Tool {
	return mcp.NewTool("unlock_files",
		mcp.WithDescription("Unlock files after modification. Fails if any path is locked by another holder; already unlocked paths are skipped."),
		mcp.WithArray("files", mcp.Required(),
			mcp.Description("File paths to unlock"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("ID of the agent unlocking the files")),
	)
}

func (t *UnlockFilesTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files := req.GetStringSlice("files", nil)

	released, err := t.store.UnlockFiles(files, agentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if released == nil {
		released = []string{}
	}
	return jsonResult(unlockFilesResult{
		UnlockedFiles: released,
		AgentID:       agentID,
	})
}
