package board

import (
	"database/sql"
	"fmt"
)

// NextAvailable scans the project's todo items in declared order and
// returns the first one that is pending, has every dependency completed,
// and references no file locked against agentID. It returns nil when
// nothing is claimable right now. The scan takes no claim: callers race
// to SetStatus, and the first committed claim wins.
func (s *SQLiteStore) NextAvailable(projectName, agentID string) (*TodoItem, error) {
	var next *TodoItem
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		p, err := projectByName(tx, projectName)
		if err != nil {
			return nil, err
		}
		snap, ordered, err := projectSnapshot(tx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range ordered {
			if !Eligible(snap, item) {
				continue
			}
			if len(LockedPaths(snap, item, agentID)) > 0 {
				continue
			}
			next = item
			break
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// projectSnapshot loads one project's work graph and the global lock
// table inside the current transaction. The second return value carries
// the todo items in claim scan order.
func projectSnapshot(tx *sql.Tx, projectID string) (*Snapshot, []*TodoItem, error) {
	tasks, err := tasksByProject(tx, projectID)
	if err != nil {
		return nil, nil, err
	}
	ordered, err := todosByProject(tx, projectID)
	if err != nil {
		return nil, nil, err
	}
	locks, err := allLocks(tx)
	if err != nil {
		return nil, nil, fmt.Errorf("load locks: %w", err)
	}
	snap := &Snapshot{
		Tasks: make(map[string]*Task, len(tasks)),
		Todos: make(map[string]*TodoItem, len(ordered)),
		Locks: make(map[string]*FileLock, len(locks)),
	}
	for _, t := range tasks {
		snap.Tasks[t.ID] = t
	}
	for _, item := range ordered {
		snap.Todos[item.ID] = item
	}
	for _, l := range locks {
		snap.Locks[l.Path] = l
	}
	return snap, ordered, nil
}
