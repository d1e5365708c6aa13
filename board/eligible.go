package board

// Snapshot is a point-in-time view of one project's work graph plus the
// global lock table, captured inside a single read transaction so
// eligibility decisions are internally consistent.
type Snapshot struct {
	Tasks map[string]*Task
	Todos map[string]*TodoItem
	Locks map[string]*FileLock
}

// Eligible reports whether item may be claimed: it is pending, every todo
// it depends on is completed, and every task its task depends on is
// completed. A dependency missing from the snapshot counts as unmet.
func Eligible(snap *Snapshot, item *TodoItem) bool {
	return len(UnmetDependencies(snap, item)) == 0
}

// UnmetDependencies returns the dependency IDs blocking a claim on item,
// in declaration order. A non-pending item blocks on itself.
func UnmetDependencies(snap *Snapshot, item *TodoItem) []string {
	var unmet []string
	if item.Status != StatusPending {
		return []string{item.ID}
	}
	for _, id := range item.DependsOn {
		dep, ok := snap.Todos[id]
		if !ok || dep.Status != StatusCompleted {
			unmet = append(unmet, id)
		}
	}
	task, ok := snap.Tasks[item.TaskID]
	if !ok {
		return append(unmet, item.TaskID)
	}
	for _, id := range task.DependsOn {
		dep, ok := snap.Tasks[id]
		if !ok || dep.Status != StatusCompleted {
			unmet = append(unmet, id)
		}
	}
	return unmet
}

// LockedPaths returns the subset of item's files that would block a claim
// by agentID: paths locked by another todo item, or manually by another
// agent. The agent's own manual locks do not block, since a claim
// converts them into locks held by the todo.
func LockedPaths(snap *Snapshot, item *TodoItem, agentID string) []string {
	var locked []string
	for _, path := range item.Files {
		lock, ok := snap.Locks[path]
		if !ok {
			continue
		}
		if lock.LockedFor == item.ID {
			continue
		}
		if lock.LockedFor == "" && lock.LockedBy == agentID {
			continue
		}
		locked = append(locked, path)
	}
	return locked
}
