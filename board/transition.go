package board

import (
	"database/sql"
	"fmt"
	"time"
)

// transitionAllowed is the todo item lifecycle. Todo items start pending,
// must be claimed before work is reported, and never leave a terminal
// status.
func transitionAllowed(from, to Status) bool {
	switch {
	case from == StatusPending && to == StatusInProgress:
		return true
	case from == StatusInProgress && to == StatusCompleted:
		return true
	case from == StatusInProgress && to == StatusCancelled:
		return true
	}
	return false
}

// SetStatus applies a status transition on behalf of an agent.
//
// A claim (pending to in_progress) re-validates dependencies and lock
// availability inside the transaction, acquires every file lock the todo
// references, and assigns the item to the agent. Losing a claim race
// yields ErrAlreadyClaimed. A terminal transition must come from the
// assigned agent, releases all locks the todo holds, and refreshes the
// owning task's aggregate status.
func (s *SQLiteStore) SetStatus(todoID string, status Status, agentID string) (*TodoItem, error) {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
	default:
		return nil, &InputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	if agentID == "" {
		return nil, &InputError{Field: "agent_id", Reason: "must not be empty"}
	}
	var updated *TodoItem
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		item, err := todoByID(tx, todoID)
		if err != nil {
			return nil, err
		}
		task, err := taskByID(tx, item.TaskID)
		if err != nil {
			return nil, err
		}
		p, err := projectByID(tx, task.ProjectID)
		if err != nil {
			return nil, err
		}
		if !transitionAllowed(item.Status, status) {
			// A lost claim race surfaces as a conflict, not a
			// lifecycle violation.
			if status == StatusInProgress && item.Status == StatusInProgress {
				return nil, fmt.Errorf("todo item %q is assigned to %s: %w", todoID, item.AssignedAgent, ErrAlreadyClaimed)
			}
			return nil, fmt.Errorf("todo item %q: %s to %s: %w", todoID, item.Status, status, ErrInvalidTransition)
		}

		var events []*AuditEvent
		if status == StatusInProgress {
			events, err = s.claim(tx, p, task, item, agentID)
		} else {
			events, err = s.finish(tx, p, task, item, status, agentID)
		}
		if err != nil {
			return nil, err
		}
		updated, err = todoByID(tx, todoID)
		if err != nil {
			return nil, err
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// claim moves a pending todo item to in_progress for agentID, taking all
// of its file locks.
func (s *SQLiteStore) claim(tx *sql.Tx, p *Project, task *Task, item *TodoItem, agentID string) ([]*AuditEvent, error) {
	snap, _, err := projectSnapshot(tx, p.ID)
	if err != nil {
		return nil, err
	}
	if unmet := UnmetDependencies(snap, item); len(unmet) > 0 {
		return nil, fmt.Errorf("todo item %q blocked by %v: %w", item.ID, unmet, ErrDependencyUnmet)
	}
	if locked := LockedPaths(snap, item, agentID); len(locked) > 0 {
		return nil, fmt.Errorf("todo item %q: files %v: %w", item.ID, locked, ErrLockConflict)
	}

	now := time.Now().UTC()
	res, err := tx.Exec(`UPDATE todo_items SET status = ?, assigned_agent = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(StatusInProgress), agentID, now, item.ID)
	if err != nil {
		return nil, fmt.Errorf("claim todo item: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("claim todo item: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("todo item %q: %w", item.ID, ErrAlreadyClaimed)
	}

	statusEv := &AuditEvent{
		Type:        EventStatusChange,
		EntityType:  EntityTodo,
		EntityID:    item.ID,
		EntityName:  item.Title,
		OldStatus:   StatusPending,
		NewStatus:   StatusInProgress,
		AgentID:     agentID,
		ProjectName: p.Name,
		TaskName:    task.Name,
		Details:     map[string]any{"change_method": "agent", "new_agent": agentID},
	}
	if err := recordEvent(tx, statusEv); err != nil {
		return nil, err
	}
	assignEv := &AuditEvent{
		Type:        EventAssignment,
		EntityType:  EntityTodo,
		EntityID:    item.ID,
		EntityName:  item.Title,
		AgentID:     agentID,
		ProjectName: p.Name,
		TaskName:    task.Name,
	}
	if len(item.Files) > 0 {
		assignEv.Details = map[string]any{"files": item.Files}
	}
	if err := recordEvent(tx, assignEv); err != nil {
		return nil, err
	}
	events := []*AuditEvent{statusEv, assignEv}

	lockEv, err := acquireLocks(tx, item, p.Name, task.Name, agentID)
	if err != nil {
		return nil, err
	}
	if lockEv != nil {
		events = append(events, lockEv)
	}
	taskEv, err := recomputeTask(tx, task.ID, p.Name, agentID)
	if err != nil {
		return nil, err
	}
	if taskEv != nil {
		events = append(events, taskEv)
	}
	return events, nil
}

// finish moves an in_progress todo item to a terminal status, releasing
// its locks and clearing the assignment.
func (s *SQLiteStore) finish(tx *sql.Tx, p *Project, task *Task, item *TodoItem, status Status, agentID string) ([]*AuditEvent, error) {
	if item.AssignedAgent != "" && item.AssignedAgent != agentID && !s.allowTakeover {
		return nil, fmt.Errorf("todo item %q is assigned to %s: %w", item.ID, item.AssignedAgent, ErrAlreadyClaimed)
	}
	now := time.Now().UTC()
	res, err := tx.Exec(`UPDATE todo_items SET status = ?, assigned_agent = '', updated_at = ?
		WHERE id = ? AND status = 'in_progress'`,
		string(status), now, item.ID)
	if err != nil {
		return nil, fmt.Errorf("update todo status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update todo status: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("todo item %q: %s to %s: %w", item.ID, item.Status, status, ErrInvalidTransition)
	}

	details := map[string]any{"change_method": "agent", "previous_agent": item.AssignedAgent}
	if item.AssignedAgent != "" && item.AssignedAgent != agentID {
		details["taken_over_from"] = item.AssignedAgent
	}
	statusEv := &AuditEvent{
		Type:        EventStatusChange,
		EntityType:  EntityTodo,
		EntityID:    item.ID,
		EntityName:  item.Title,
		OldStatus:   StatusInProgress,
		NewStatus:   status,
		AgentID:     agentID,
		ProjectName: p.Name,
		TaskName:    task.Name,
		Details:     details,
	}
	if err := recordEvent(tx, statusEv); err != nil {
		return nil, err
	}
	events := []*AuditEvent{statusEv}

	unlockEv, err := releaseLocks(tx, item, p.Name, task.Name, agentID)
	if err != nil {
		return nil, err
	}
	if unlockEv != nil {
		events = append(events, unlockEv)
	}
	taskEv, err := recomputeTask(tx, task.ID, p.Name, agentID)
	if err != nil {
		return nil, err
	}
	if taskEv != nil {
		events = append(events, taskEv)
	}
	return events, nil
}
