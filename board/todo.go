package board

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateTodo creates a todo item under a task at the given order.
// Dependency IDs must name existing todo items in the same project.
func (s *SQLiteStore) CreateTodo(taskID, title, description string, order int, dependsOn, files []string) (*TodoItem, error) {
	if title == "" {
		return nil, &InputError{Field: "title", Reason: "must not be empty"}
	}
	var created *TodoItem
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		task, err := taskByID(tx, taskID)
		if err != nil {
			return nil, err
		}
		item := newTodoItem(taskID, title, description, order, dependsOn, files)
		events, err := insertTodoItem(tx, task, item, nil)
		if err != nil {
			return nil, err
		}
		created = item
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// InsertTodo creates a todo item positioned after afterTodoID, shifting
// every subsequent sibling one place down. An empty afterTodoID inserts
// at the head of the task.
func (s *SQLiteStore) InsertTodo(taskID, title, description, afterTodoID string, dependsOn, files []string) (*TodoItem, error) {
	if title == "" {
		return nil, &InputError{Field: "title", Reason: "must not be empty"}
	}
	var created *TodoItem
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		task, err := taskByID(tx, taskID)
		if err != nil {
			return nil, err
		}
		order := 0
		detail := map[string]any{"inserted_at": "head"}
		if afterTodoID != "" {
			anchor, err := todoByID(tx, afterTodoID)
			if err != nil {
				return nil, fmt.Errorf("insert anchor: %w", err)
			}
			if anchor.TaskID != taskID {
				return nil, fmt.Errorf("todo item %q is not in task %q: %w", afterTodoID, taskID, ErrNotFound)
			}
			order = anchor.Order + 1
			detail = map[string]any{"inserted_after": afterTodoID}
		}
		if _, err := tx.Exec(`UPDATE todo_items SET order_index = order_index + 1
			WHERE task_id = ? AND order_index >= ?`, taskID, order); err != nil {
			return nil, fmt.Errorf("shift todo order: %w", err)
		}
		item := newTodoItem(taskID, title, description, order, dependsOn, files)
		events, err := insertTodoItem(tx, task, item, detail)
		if err != nil {
			return nil, err
		}
		created = item
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetTodo retrieves a todo item by ID.
func (s *SQLiteStore) GetTodo(id string) (*TodoItem, error) {
	return todoByID(s.db, id)
}

func newTodoItem(taskID, title, description string, order int, dependsOn, files []string) *TodoItem {
	now := time.Now().UTC()
	return &TodoItem{
		ID:          newID(),
		TaskID:      taskID,
		Title:       title,
		Description: description,
		Order:       order,
		Status:      StatusPending,
		DependsOn:   dependsOn,
		Files:       files,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// insertTodoItem validates dependencies, writes the row, records the
// creation event, and refreshes the owning task's aggregate status.
func insertTodoItem(tx *sql.Tx, task *Task, item *TodoItem, detail map[string]any) ([]*AuditEvent, error) {
	p, err := projectByID(tx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	for _, depID := range item.DependsOn {
		depProject, err := todoProjectID(tx, depID)
		if err != nil {
			return nil, fmt.Errorf("dependency: %w", err)
		}
		if depProject != task.ProjectID {
			return nil, fmt.Errorf("dependency todo %q is not in project %q: %w", depID, p.Name, ErrNotFound)
		}
	}
	deps, err := json.Marshal(emptyIfNil(item.DependsOn))
	if err != nil {
		return nil, fmt.Errorf("marshal dependencies: %w", err)
	}
	files, err := json.Marshal(emptyIfNil(item.Files))
	if err != nil {
		return nil, fmt.Errorf("marshal files: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO todo_items
		(id, task_id, title, description, order_index, status, depends_on, files, assigned_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TaskID, item.Title, item.Description, item.Order, string(item.Status),
		string(deps), string(files), item.AssignedAgent, item.CreatedAt, item.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert todo item: %w", err)
	}

	ev := &AuditEvent{
		Type:        EventTodoCreated,
		EntityType:  EntityTodo,
		EntityID:    item.ID,
		EntityName:  item.Title,
		NewStatus:   item.Status,
		ProjectName: p.Name,
		TaskName:    task.Name,
		Details:     map[string]any{},
	}
	for k, v := range detail {
		ev.Details[k] = v
	}
	if len(item.DependsOn) > 0 {
		ev.Details["depends_on"] = item.DependsOn
	}
	if len(item.Files) > 0 {
		ev.Details["files"] = item.Files
	}
	if err := recordEvent(tx, ev); err != nil {
		return nil, err
	}
	events := []*AuditEvent{ev}

	// A new pending todo can reopen a completed task.
	if taskEv, err := recomputeTask(tx, task.ID, p.Name, ""); err != nil {
		return nil, err
	} else if taskEv != nil {
		events = append(events, taskEv)
	}
	return events, nil
}

func todoByID(q querier, id string) (*TodoItem, error) {
	row := q.QueryRow(`SELECT id, task_id, title, description, order_index, status, depends_on, files, assigned_agent, created_at, updated_at
		FROM todo_items WHERE id = ?`, id)
	item, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("todo item %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get todo item: %w", err)
	}
	return item, nil
}

// todoProjectID resolves the project a todo item belongs to.
func todoProjectID(q querier, todoID string) (string, error) {
	var projectID string
	err := q.QueryRow(`SELECT t.project_id FROM todo_items ti
		JOIN tasks t ON t.id = ti.task_id WHERE ti.id = ?`, todoID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("todo item %q: %w", todoID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve todo project: %w", err)
	}
	return projectID, nil
}

func todosByTask(q querier, taskID string) ([]*TodoItem, error) {
	rows, err := q.Query(`SELECT id, task_id, title, description, order_index, status, depends_on, files, assigned_agent, created_at, updated_at
		FROM todo_items WHERE task_id = ? ORDER BY order_index, created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list todo items: %w", err)
	}
	defer rows.Close()
	return collectTodos(rows)
}

// todosByProject returns every todo item of a project in claim scan
// order: tasks by declared order, then todo items by declared order,
// creation time and ID breaking ties.
func todosByProject(q querier, projectID string) ([]*TodoItem, error) {
	rows, err := q.Query(`SELECT ti.id, ti.task_id, ti.title, ti.description, ti.order_index, ti.status, ti.depends_on, ti.files, ti.assigned_agent, ti.created_at, ti.updated_at
		FROM todo_items ti
		JOIN tasks t ON t.id = ti.task_id
		WHERE t.project_id = ?
		ORDER BY t.order_index, t.created_at, t.id, ti.order_index, ti.created_at, ti.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project todos: %w", err)
	}
	defer rows.Close()
	return collectTodos(rows)
}

func collectTodos(rows *sql.Rows) ([]*TodoItem, error) {
	var items []*TodoItem
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan todo item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
