package board

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CheckFileLocks reports the current holder of each locked path among
// paths. Unlocked paths are absent from the result.
func (s *SQLiteStore) CheckFileLocks(paths []string) (map[string]*FileLock, error) {
	result := make(map[string]*FileLock, len(paths))
	if len(paths) == 0 {
		return result, nil
	}
	locks, err := locksByPath(s.db, paths)
	if err != nil {
		return nil, err
	}
	for _, l := range locks {
		result[l.Path] = l
	}
	return result, nil
}

// LockFiles manually locks paths for an agent. Either every path is
// available (or already held manually by the same agent) and all are
// locked, or nothing changes and the conflicting paths are reported.
func (s *SQLiteStore) LockFiles(paths []string, agentID string) error {
	if agentID == "" {
		return &InputError{Field: "agent_id", Reason: "must not be empty"}
	}
	paths = dedupe(paths)
	if len(paths) == 0 {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		held, err := locksByPath(tx, paths)
		if err != nil {
			return nil, err
		}
		byPath := make(map[string]*FileLock, len(held))
		var conflicts []string
		for _, l := range held {
			byPath[l.Path] = l
			if l.LockedFor != "" || l.LockedBy != agentID {
				conflicts = append(conflicts, fmt.Sprintf("%s (locked by %s)", l.Path, l.LockedBy))
			}
		}
		if len(conflicts) > 0 {
			return nil, fmt.Errorf("%s: %w", strings.Join(conflicts, ", "), ErrLockConflict)
		}
		now := time.Now().UTC()
		var locked []string
		for _, path := range paths {
			if _, ok := byPath[path]; ok {
				// Already held manually by this agent.
				continue
			}
			if _, err := tx.Exec(`INSERT INTO file_locks (path, locked_by, locked_for, locked_at)
				VALUES (?, ?, '', ?)`, path, agentID, now); err != nil {
				return nil, fmt.Errorf("lock %s: %w", path, err)
			}
			locked = append(locked, path)
		}
		if len(locked) == 0 {
			return nil, nil
		}
		ev := &AuditEvent{
			Type:       EventFileLock,
			EntityType: EntityFile,
			AgentID:    agentID,
			Details:    map[string]any{"paths": locked},
		}
		if err := recordEvent(tx, ev); err != nil {
			return nil, err
		}
		return []*AuditEvent{ev}, nil
	})
}

// UnlockFiles releases manual locks held by the agent. A path locked by
// another agent or by a todo item fails the whole call with
// ErrLockConflict; paths that are not locked at all are skipped. The
// returned slice lists the paths actually released.
func (s *SQLiteStore) UnlockFiles(paths []string, agentID string) ([]string, error) {
	if agentID == "" {
		return nil, &InputError{Field: "agent_id", Reason: "must not be empty"}
	}
	paths = dedupe(paths)
	if len(paths) == 0 {
		return nil, nil
	}
	var released []string
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		held, err := locksByPath(tx, paths)
		if err != nil {
			return nil, err
		}
		var conflicts []string
		var owned []string
		for _, l := range held {
			if l.LockedFor != "" || l.LockedBy != agentID {
				conflicts = append(conflicts, fmt.Sprintf("%s (locked by %s)", l.Path, l.LockedBy))
				continue
			}
			owned = append(owned, l.Path)
		}
		if len(conflicts) > 0 {
			return nil, fmt.Errorf("%s: %w", strings.Join(conflicts, ", "), ErrLockConflict)
		}
		if len(owned) == 0 {
			return nil, nil
		}
		for _, path := range owned {
			if _, err := tx.Exec(`DELETE FROM file_locks WHERE path = ? AND locked_by = ? AND locked_for = ''`,
				path, agentID); err != nil {
				return nil, fmt.Errorf("unlock %s: %w", path, err)
			}
		}
		ev := &AuditEvent{
			Type:       EventFileUnlock,
			EntityType: EntityFile,
			AgentID:    agentID,
			Details:    map[string]any{"paths": owned},
		}
		if err := recordEvent(tx, ev); err != nil {
			return nil, err
		}
		released = owned
		return []*AuditEvent{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// ListLocks returns the current lock table ordered by path.
func (s *SQLiteStore) ListLocks() ([]*FileLock, error) {
	return allLocks(s.db)
}

// acquireLocks takes every file lock a todo item references, on claim.
// The caller has already checked for conflicts, so any row replaced here
// is a manual lock the claiming agent held on the same path.
func acquireLocks(tx *sql.Tx, item *TodoItem, projectName, taskName, agentID string) (*AuditEvent, error) {
	if len(item.Files) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	for _, path := range item.Files {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO file_locks (path, locked_by, locked_for, locked_at)
			VALUES (?, ?, ?, ?)`, path, agentID, item.ID, now); err != nil {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
	}
	ev := &AuditEvent{
		Type:        EventFileLock,
		EntityType:  EntityFile,
		EntityID:    item.ID,
		EntityName:  item.Title,
		AgentID:     agentID,
		ProjectName: projectName,
		TaskName:    taskName,
		Details:     map[string]any{"paths": item.Files, "locked_for": item.ID},
	}
	if err := recordEvent(tx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// releaseLocks drops every lock held by the todo item. Returns nil when
// the item held none.
func releaseLocks(tx *sql.Tx, item *TodoItem, projectName, taskName, agentID string) (*AuditEvent, error) {
	rows, err := tx.Query(`SELECT path FROM file_locks WHERE locked_for = ? ORDER BY path`, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list todo locks: %w", err)
	}
	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan lock path: %w", err)
		}
		paths = append(paths, path)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	if _, err := tx.Exec(`DELETE FROM file_locks WHERE locked_for = ?`, item.ID); err != nil {
		return nil, fmt.Errorf("release todo locks: %w", err)
	}
	ev := &AuditEvent{
		Type:        EventFileUnlock,
		EntityType:  EntityFile,
		EntityID:    item.ID,
		EntityName:  item.Title,
		AgentID:     agentID,
		ProjectName: projectName,
		TaskName:    taskName,
		Details:     map[string]any{"paths": paths, "locked_for": item.ID},
	}
	if err := recordEvent(tx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func locksByPath(q querier, paths []string) ([]*FileLock, error) {
	query := `SELECT path, locked_by, locked_for, locked_at FROM file_locks WHERE path IN (?` +
		strings.Repeat(", ?", len(paths)-1) + `)`
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()
	return collectLocks(rows)
}

func allLocks(q querier) ([]*FileLock, error) {
	rows, err := q.Query(`SELECT path, locked_by, locked_for, locked_at FROM file_locks ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query locks: %w", err)
	}
	defer rows.Close()
	return collectLocks(rows)
}

func collectLocks(rows *sql.Rows) ([]*FileLock, error) {
	var locks []*FileLock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
