package board

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateTask creates a task under the named project. Dependency IDs must
// name existing tasks in the same project. Dependencies are write-once
// and can only reference earlier tasks, so the graph stays acyclic.
func (s *SQLiteStore) CreateTask(projectName, name, description string, order int, dependsOn []string) (*Task, error) {
	if name == "" {
		return nil, &InputError{Field: "name", Reason: "must not be empty"}
	}
	now := time.Now().UTC()
	t := &Task{
		ID:          newID(),
		Name:        name,
		Description: description,
		Order:       order,
		Status:      StatusPending,
		DependsOn:   dependsOn,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		p, err := projectByName(tx, projectName)
		if err != nil {
			return nil, err
		}
		t.ProjectID = p.ID
		for _, depID := range dependsOn {
			dep, err := taskByID(tx, depID)
			if err != nil {
				return nil, fmt.Errorf("dependency: %w", err)
			}
			if dep.ProjectID != p.ID {
				return nil, fmt.Errorf("dependency task %q is not in project %q: %w", depID, projectName, ErrNotFound)
			}
		}
		deps, err := json.Marshal(emptyIfNil(dependsOn))
		if err != nil {
			return nil, fmt.Errorf("marshal dependencies: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO tasks
			(id, project_id, name, description, order_index, status, depends_on, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ProjectID, t.Name, t.Description, t.Order, string(t.Status),
			string(deps), t.CreatedAt, t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
		ev := &AuditEvent{
			Type:        EventTaskCreated,
			EntityType:  EntityTask,
			EntityID:    t.ID,
			EntityName:  t.Name,
			NewStatus:   t.Status,
			ProjectName: p.Name,
			TaskName:    t.Name,
		}
		if len(dependsOn) > 0 {
			ev.Details = map[string]any{"depends_on": dependsOn}
		}
		if err := recordEvent(tx, ev); err != nil {
			return nil, err
		}
		return []*AuditEvent{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(id string) (*Task, error) {
	return taskByID(s.db, id)
}

func taskByID(q querier, id string) (*Task, error) {
	row := q.QueryRow(`SELECT id, project_id, name, description, order_index, status, depends_on, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func tasksByProject(q querier, projectID string) ([]*Task, error) {
	rows, err := q.Query(`SELECT id, project_id, name, description, order_index, status, depends_on, created_at, updated_at
		FROM tasks WHERE project_id = ? ORDER BY order_index, created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// deriveTaskStatus folds todo item counts into the task aggregate: a task
// with at least one completed todo and nothing left pending or running is
// completed, any other started work makes it in_progress, otherwise it is
// pending. An all-cancelled task stays in_progress because nothing in it
// ever finished.
func deriveTaskStatus(c StatusCounts) Status {
	switch {
	case c.Total == 0:
		return StatusPending
	case c.Pending == 0 && c.InProgress == 0 && c.Completed > 0:
		return StatusCompleted
	case c.InProgress > 0 || c.Completed > 0 || c.Cancelled > 0:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// recomputeTask refreshes the task's aggregate status after one of its
// todo items changed. It returns the status change event, or nil when the
// aggregate is unchanged. agentID credits the agent whose todo change
// triggered the recompute.
func recomputeTask(tx *sql.Tx, taskID, projectName, agentID string) (*AuditEvent, error) {
	t, err := taskByID(tx, taskID)
	if err != nil {
		return nil, err
	}
	counts, err := statusCounts(tx, `SELECT status, COUNT(*) FROM todo_items
		WHERE task_id = ? GROUP BY status`, taskID)
	if err != nil {
		return nil, fmt.Errorf("count todos: %w", err)
	}
	derived := deriveTaskStatus(counts)
	if derived == t.Status {
		return nil, nil
	}
	if _, err := tx.Exec(`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(derived), time.Now().UTC(), taskID); err != nil {
		return nil, fmt.Errorf("update task status: %w", err)
	}
	ev := &AuditEvent{
		Type:        EventStatusChange,
		EntityType:  EntityTask,
		EntityID:    t.ID,
		EntityName:  t.Name,
		OldStatus:   t.Status,
		NewStatus:   derived,
		AgentID:     agentID,
		ProjectName: projectName,
		TaskName:    t.Name,
		Details:     map[string]any{"change_method": "aggregate"},
	}
	if err := recordEvent(tx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func emptyIfNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
