package board

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// CreateProject creates a project with a unique name. Projects start in
// in_progress so agents can claim work as soon as it is defined.
func (s *SQLiteStore) CreateProject(name, description string) (*Project, error) {
	if name == "" {
		return nil, &InputError{Field: "name", Reason: "must not be empty"}
	}
	now := time.Now().UTC()
	p := &Project{
		ID:          newID(),
		Name:        name,
		Description: description,
		Status:      StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM projects WHERE name = ?`, name).Scan(&count); err != nil {
			return nil, fmt.Errorf("check project name: %w", err)
		}
		if count > 0 {
			return nil, fmt.Errorf("project %q: %w", name, ErrAlreadyExists)
		}
		if _, err := tx.Exec(`INSERT INTO projects (id, name, description, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Description, string(p.Status), p.CreatedAt, p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert project: %w", err)
		}
		ev := &AuditEvent{
			Type:        EventProjectCreated,
			EntityType:  EntityProject,
			EntityID:    p.ID,
			EntityName:  p.Name,
			NewStatus:   p.Status,
			ProjectName: p.Name,
		}
		if err := recordEvent(tx, ev); err != nil {
			return nil, err
		}
		return []*AuditEvent{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject retrieves a project by name.
func (s *SQLiteStore) GetProject(name string) (*Project, error) {
	return projectByName(s.db, name)
}

// ListProjects returns all projects, newest first.
func (s *SQLiteStore) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT id, name, description, status, created_at, updated_at
		FROM projects ORDER BY created_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ProjectStatus returns the project's full task and todo tree with
// completion statistics, read in one transaction.
func (s *SQLiteStore) ProjectStatus(name string) (*ProjectStatus, error) {
	var out *ProjectStatus
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		p, err := projectByName(tx, name)
		if err != nil {
			return nil, err
		}
		tasks, err := tasksByProject(tx, p.ID)
		if err != nil {
			return nil, err
		}
		status := &ProjectStatus{Project: p}
		var all []*TodoItem
		for _, t := range tasks {
			todos, err := todosByTask(tx, t.ID)
			if err != nil {
				return nil, err
			}
			status.Tasks = append(status.Tasks, &TaskStatus{
				Task:      t,
				TodoItems: todos,
				Stats:     todoStats(todos),
			})
			all = append(all, todos...)
		}
		status.Stats = todoStats(all)
		out = status
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompletionSummary reports the project's completed work, who completed
// it, and aggregate per-agent statistics derived from the audit trail.
func (s *SQLiteStore) CompletionSummary(name string) (*CompletionSummary, error) {
	var out *CompletionSummary
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		p, err := projectByName(tx, name)
		if err != nil {
			return nil, err
		}
		sum := &CompletionSummary{Project: p}

		sum.CompletedTasks, err = completedItems(tx, `
			SELECT t.id, t.name, '', ae.agent_id, ae.created_at
			FROM tasks t
			LEFT JOIN audit_events ae ON ae.entity_type = 'task' AND ae.entity_id = t.id
				AND ae.event_type = 'status_change' AND ae.new_status = 'completed'
			WHERE t.project_id = ? AND t.status = 'completed'
			ORDER BY ae.created_at, t.order_index`, p.ID)
		if err != nil {
			return nil, fmt.Errorf("completed tasks: %w", err)
		}
		sum.CompletedTodos, err = completedItems(tx, `
			SELECT ti.id, ti.title, t.name, ae.agent_id, ae.created_at
			FROM todo_items ti
			JOIN tasks t ON t.id = ti.task_id
			LEFT JOIN audit_events ae ON ae.entity_type = 'todo' AND ae.entity_id = ti.id
				AND ae.event_type = 'status_change' AND ae.new_status = 'completed'
			WHERE t.project_id = ? AND ti.status = 'completed'
			ORDER BY ae.created_at, ti.order_index`, p.ID)
		if err != nil {
			return nil, fmt.Errorf("completed todos: %w", err)
		}
		sum.AgentStats = agentStats(sum.CompletedTasks, sum.CompletedTodos)

		sum.Tasks, err = statusCounts(tx, `SELECT status, COUNT(*) FROM tasks
			WHERE project_id = ? GROUP BY status`, p.ID)
		if err != nil {
			return nil, fmt.Errorf("task progress: %w", err)
		}
		sum.Todos, err = statusCounts(tx, `SELECT ti.status, COUNT(*) FROM todo_items ti
			JOIN tasks t ON t.id = ti.task_id
			WHERE t.project_id = ? GROUP BY ti.status`, p.ID)
		if err != nil {
			return nil, fmt.Errorf("todo progress: %w", err)
		}
		if sum.Tasks.Total > 0 {
			sum.OverallPct = roundPct(sum.Tasks.Completed, sum.Tasks.Total)
		}
		out = sum
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func projectByName(q querier, name string) (*Project, error) {
	row := q.QueryRow(`SELECT id, name, description, status, created_at, updated_at
		FROM projects WHERE name = ?`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func projectByID(q querier, id string) (*Project, error) {
	row := q.QueryRow(`SELECT id, name, description, status, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func todoStats(items []*TodoItem) TodoStats {
	st := TodoStats{Total: len(items)}
	for _, it := range items {
		switch it.Status {
		case StatusCompleted:
			st.Completed++
		case StatusInProgress:
			st.InProgress++
		case StatusPending:
			st.Pending++
		case StatusCancelled:
			st.Cancelled++
		}
	}
	if st.Total > 0 {
		st.CompletionPct = roundPct(st.Completed, st.Total)
	}
	return st
}

func roundPct(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*1000) / 10
}

func completedItems(q querier, query string, args ...any) ([]*CompletedItem, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*CompletedItem
	for rows.Next() {
		var it CompletedItem
		var by sql.NullString
		var at sql.NullTime
		if err := rows.Scan(&it.ID, &it.Name, &it.TaskName, &by, &at); err != nil {
			return nil, err
		}
		it.CompletedBy = by.String
		it.CompletedAt = at.Time
		items = append(items, &it)
	}
	return items, rows.Err()
}

// agentStats folds completed task and todo records into per-agent
// aggregates, busiest agent first.
func agentStats(tasks, todos []*CompletedItem) []*AgentStat {
	byAgent := make(map[string]*AgentStat)
	record := func(it *CompletedItem, isTask bool) {
		if it.CompletedBy == "" {
			return
		}
		stat, ok := byAgent[it.CompletedBy]
		if !ok {
			stat = &AgentStat{AgentID: it.CompletedBy, FirstCompletion: it.CompletedAt}
			byAgent[it.CompletedBy] = stat
		}
		if isTask {
			stat.TasksCompleted++
		} else {
			stat.TodosCompleted++
		}
		if it.CompletedAt.Before(stat.FirstCompletion) {
			stat.FirstCompletion = it.CompletedAt
		}
		if it.CompletedAt.After(stat.LastCompletion) {
			stat.LastCompletion = it.CompletedAt
		}
	}
	for _, it := range tasks {
		record(it, true)
	}
	for _, it := range todos {
		record(it, false)
	}
	stats := make([]*AgentStat, 0, len(byAgent))
	for _, stat := range byAgent {
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].TodosCompleted != stats[j].TodosCompleted {
			return stats[i].TodosCompleted > stats[j].TodosCompleted
		}
		return stats[i].AgentID < stats[j].AgentID
	})
	return stats
}

func statusCounts(q querier, query string, args ...any) (StatusCounts, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return StatusCounts{}, err
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, err
		}
		counts.Total += n
		switch Status(status) {
		case StatusCompleted:
			counts.Completed += n
		case StatusInProgress:
			counts.InProgress += n
		case StatusPending:
			counts.Pending += n
		case StatusCancelled:
			counts.Cancelled += n
		}
	}
	return counts, rows.Err()
}
