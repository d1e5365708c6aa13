// Package board defines the coordination data model and its SQLite-backed
// store: projects, tasks, todo items, file locks, and the append-only audit
// trail. Every mutating store operation runs as a single transaction so the
// lock, status, and audit invariants hold at every commit point.
package board

import "time"

// Status represents the lifecycle state of a task or todo item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus validates a status string received from a transport layer.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", &InputError{Field: "status", Reason: "must be one of pending, in_progress, completed, cancelled"}
}

// Project is the root of a coordination tree, identified by a unique name.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task groups todo items within a project. Its status is a derived
// aggregate of its todo items and is never set directly by agents.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	Status      Status    `json:"status"`
	DependsOn   []string  `json:"depends_on,omitempty"` // task IDs, all must complete first
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TodoItem is the unit of claimable work.
type TodoItem struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"task_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Order         int       `json:"order"`
	Status        Status    `json:"status"`
	DependsOn     []string  `json:"depends_on,omitempty"` // todo IDs, all must complete first
	Files         []string  `json:"files,omitempty"`      // paths locked while in progress
	AssignedAgent string    `json:"assigned_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FileLock records exclusive ownership of a file path. LockedFor names the
// todo item holding the lock; it is empty for manual locks taken directly
// by an agent.
type FileLock struct {
	Path      string    `json:"path"`
	LockedBy  string    `json:"locked_by"`
	LockedFor string    `json:"locked_for,omitempty"`
	LockedAt  time.Time `json:"locked_at"`
}

// EventType classifies audit events.
type EventType string

const (
	EventProjectCreated EventType = "project_created"
	EventTaskCreated    EventType = "task_created"
	EventTodoCreated    EventType = "todo_created"
	EventStatusChange   EventType = "status_change"
	EventFileLock       EventType = "file_lock"
	EventFileUnlock     EventType = "file_unlock"
	EventAssignment     EventType = "assignment"
)

// Entity types recorded on audit events.
const (
	EntityProject = "project"
	EntityTask    = "task"
	EntityTodo    = "todo"
	EntityFile    = "file"
)

// AuditEvent is one immutable record of a committed state change. IDs are
// assigned by the store and increase monotonically, giving the trail a
// total order per project.
type AuditEvent struct {
	ID          int64          `json:"id"`
	Type        EventType      `json:"event_type"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id,omitempty"`
	EntityName  string         `json:"entity_name,omitempty"`
	OldStatus   Status         `json:"old_status,omitempty"`
	NewStatus   Status         `json:"new_status,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	ProjectName string         `json:"project_name,omitempty"`
	TaskName    string         `json:"task_name,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TodoStats summarises todo item statuses for a task or whole project.
type TodoStats struct {
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	InProgress    int     `json:"in_progress"`
	Pending       int     `json:"pending"`
	Cancelled     int     `json:"cancelled"`
	CompletionPct float64 `json:"completion_percentage"`
}

// TaskStatus is a task with its todo items and per-task stats.
type TaskStatus struct {
	Task      *Task       `json:"task"`
	TodoItems []*TodoItem `json:"todo_items"`
	Stats     TodoStats   `json:"stats"`
}

// ProjectStatus is the full tree view of a project.
type ProjectStatus struct {
	Project *Project      `json:"project"`
	Tasks   []*TaskStatus `json:"tasks"`
	Stats   TodoStats     `json:"overall_stats"`
}

// CompletedItem describes one completed task or todo with who finished it
// and when, derived from the audit trail.
type CompletedItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TaskName    string    `json:"task_name,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	CompletedBy string    `json:"completed_by,omitempty"`
}

// AgentStat aggregates one agent's completions within a project.
type AgentStat struct {
	AgentID         string    `json:"agent_id"`
	TasksCompleted  int       `json:"tasks_completed"`
	TodosCompleted  int       `json:"todos_completed"`
	FirstCompletion time.Time `json:"first_completion"`
	LastCompletion  time.Time `json:"last_completion"`
}

// StatusCounts breaks an entity population down by status.
type StatusCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
	Cancelled  int `json:"cancelled"`
}

// CompletionSummary reports project progress with per-agent statistics.
type CompletionSummary struct {
	Project        *Project         `json:"project"`
	CompletedTasks []*CompletedItem `json:"completed_tasks"`
	CompletedTodos []*CompletedItem `json:"completed_todos"`
	AgentStats     []*AgentStat     `json:"agent_statistics"`
	Tasks          StatusCounts     `json:"task_progress"`
	Todos          StatusCounts     `json:"todo_progress"`
	OverallPct     float64          `json:"overall_completion_percentage"`
}

// AuditFilter narrows an audit trail query. A zero filter returns the
// newest DefaultAuditLimit events.
type AuditFilter struct {
	Type    EventType `json:"event_type,omitempty"`
	AgentID string    `json:"agent_id,omitempty"`
	Limit   int       `json:"limit,omitempty"`
}

// DefaultAuditLimit caps audit trail queries with no explicit limit.
const DefaultAuditLimit = 50

// CompletionTally counts completion events within a project's trail.
type CompletionTally struct {
	Total int `json:"total"`
	Tasks int `json:"tasks"`
	Todos int `json:"todos"`
}

// AuditTrail is the queried slice of a project's audit history, newest
// first, with its milestone timeline oldest first.
type AuditTrail struct {
	ProjectName string          `json:"project_name"`
	Events      []*AuditEvent   `json:"events"`
	Milestones  []*AuditEvent   `json:"milestones"`
	Completions CompletionTally `json:"completion_statistics"`
}

// Store is the durable, transactional entity store. Every mutating method
// executes as one atomic unit: its state change and audit events commit
// together or not at all, and observers registered via WithNotifier hear
// about the events only after the commit succeeds.
type Store interface {
	// CreateProject creates a project with a unique name.
	// Returns ErrAlreadyExists on a duplicate name.
	CreateProject(name, description string) (*Project, error)

	// GetProject retrieves a project by name.
	GetProject(name string) (*Project, error)

	// ListProjects returns all projects, newest first.
	ListProjects() ([]*Project, error)

	// ProjectStatus returns the full task/todo tree with completion stats.
	ProjectStatus(name string) (*ProjectStatus, error)

	// CompletionSummary reports completed work and per-agent statistics.
	CompletionSummary(name string) (*CompletionSummary, error)

	// CreateTask creates a task under the named project. Dependency IDs
	// must name existing tasks in the same project.
	CreateTask(projectName, name, description string, order int, dependsOn []string) (*Task, error)

	// GetTask retrieves a task by ID.
	GetTask(id string) (*Task, error)

	// CreateTodo creates a todo item under a task. Dependency IDs must
	// name existing todo items in the same project.
	CreateTodo(taskID, title, description string, order int, dependsOn, files []string) (*TodoItem, error)

	// InsertTodo creates a todo item positioned after afterTodoID,
	// shifting subsequent siblings one place down. An empty afterTodoID
	// inserts at the head of the task.
	InsertTodo(taskID, title, description, afterTodoID string, dependsOn, files []string) (*TodoItem, error)

	// GetTodo retrieves a todo item by ID.
	GetTodo(id string) (*TodoItem, error)

	// NextAvailable scans the project's todo items in declared order and
	// returns the first claimable one, or nil when none is claimable.
	// The scan is read-only: claiming is a separate SetStatus call.
	NextAvailable(projectName, agentID string) (*TodoItem, error)

	// SetStatus applies a status transition. Claims (pending to
	// in_progress) re-validate dependencies, acquire all referenced file
	// locks, and record the agent; terminal transitions release the
	// todo's locks and recompute the owning task's aggregate status.
	SetStatus(todoID string, status Status, agentID string) (*TodoItem, error)

	// CheckFileLocks reports current holders for the given paths.
	// Unlocked paths are absent from the result.
	CheckFileLocks(paths []string) (map[string]*FileLock, error)

	// LockFiles manually locks paths for an agent, all or nothing.
	LockFiles(paths []string, agentID string) error

	// UnlockFiles releases manual locks held by the agent, all or
	// nothing: a path locked by another holder fails the call, while
	// unlocked paths are skipped. The returned slice lists the paths
	// actually released.
	UnlockFiles(paths []string, agentID string) ([]string, error)

	// ListLocks returns the current lock table.
	ListLocks() ([]*FileLock, error)

	// AuditTrail returns a project's audit history.
	AuditTrail(projectName string, f AuditFilter) (*AuditTrail, error)

	// Close releases the underlying database.
	Close() error
}
