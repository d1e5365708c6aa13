package board

import "testing"

func snapshotOf(tasks []*Task, todos []*TodoItem, locks []*FileLock) *Snapshot {
	snap := &Snapshot{
		Tasks: make(map[string]*Task),
		Todos: make(map[string]*TodoItem),
		Locks: make(map[string]*FileLock),
	}
	for _, t := range tasks {
		snap.Tasks[t.ID] = t
	}
	for _, item := range todos {
		snap.Todos[item.ID] = item
	}
	for _, l := range locks {
		snap.Locks[l.Path] = l
	}
	return snap
}

func TestUnmetDependencies(t *testing.T) {
	task := &Task{ID: "t1", Status: StatusInProgress}
	done := &TodoItem{ID: "done", TaskID: "t1", Status: StatusCompleted}
	open := &TodoItem{ID: "open", TaskID: "t1", Status: StatusPending}

	tests := []struct {
		name string
		item *TodoItem
		want int
	}{
		{"no dependencies", &TodoItem{ID: "a", TaskID: "t1", Status: StatusPending}, 0},
		{"completed dependency", &TodoItem{ID: "b", TaskID: "t1", Status: StatusPending, DependsOn: []string{"done"}}, 0},
		{"pending dependency", &TodoItem{ID: "c", TaskID: "t1", Status: StatusPending, DependsOn: []string{"open"}}, 1},
		{"missing dependency", &TodoItem{ID: "d", TaskID: "t1", Status: StatusPending, DependsOn: []string{"ghost"}}, 1},
		{"mixed dependencies", &TodoItem{ID: "e", TaskID: "t1", Status: StatusPending, DependsOn: []string{"done", "open", "ghost"}}, 2},
		{"not pending", &TodoItem{ID: "f", TaskID: "t1", Status: StatusInProgress}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotOf([]*Task{task}, []*TodoItem{done, open, tt.item}, nil)
			got := UnmetDependencies(snap, tt.item)
			if len(got) != tt.want {
				t.Errorf("UnmetDependencies = %v, want %d entries", got, tt.want)
			}
			if eligible := Eligible(snap, tt.item); eligible != (tt.want == 0) {
				t.Errorf("Eligible = %v, want %v", eligible, tt.want == 0)
			}
		})
	}
}

func TestUnmetDependencies_TaskGate(t *testing.T) {
	doneTask := &Task{ID: "t-done", Status: StatusCompleted}
	openTask := &Task{ID: "t-open", Status: StatusPending}
	gated := &Task{ID: "t-gated", Status: StatusPending, DependsOn: []string{"t-done", "t-open"}}
	item := &TodoItem{ID: "a", TaskID: "t-gated", Status: StatusPending}

	snap := snapshotOf([]*Task{doneTask, openTask, gated}, []*TodoItem{item}, nil)
	unmet := UnmetDependencies(snap, item)
	if len(unmet) != 1 || unmet[0] != "t-open" {
		t.Errorf("UnmetDependencies = %v, want [t-open]", unmet)
	}

	openTask.Status = StatusCompleted
	if !Eligible(snap, item) {
		t.Error("item not eligible after task dependency completed")
	}
}

func TestLockedPaths(t *testing.T) {
	item := &TodoItem{ID: "me", Status: StatusPending, Files: []string{"a.go", "b.go", "c.go", "d.go"}}
	locks := []*FileLock{
		{Path: "a.go", LockedBy: "agent-1", LockedFor: "other"}, // other todo
		{Path: "b.go", LockedBy: "agent-2", LockedFor: ""},      // other agent, manual
		{Path: "c.go", LockedBy: "agent-1", LockedFor: ""},      // own manual lock
	}
	snap := snapshotOf(nil, nil, locks)

	got := LockedPaths(snap, item, "agent-1")
	if len(got) != 2 || got[0] != "a.go" || got[1] != "b.go" {
		t.Errorf("LockedPaths = %v, want [a.go b.go]", got)
	}
}

func TestLockedPaths_OwnTodoLock(t *testing.T) {
	item := &TodoItem{ID: "me", Files: []string{"a.go"}}
	snap := snapshotOf(nil, nil, []*FileLock{
		{Path: "a.go", LockedBy: "agent-1", LockedFor: "me"},
	})

	if got := LockedPaths(snap, item, "agent-1"); len(got) != 0 {
		t.Errorf("LockedPaths = %v, want none for the item's own locks", got)
	}
}

func TestDeriveTaskStatus(t *testing.T) {
	tests := []struct {
		name   string
		counts StatusCounts
		want   Status
	}{
		{"empty", StatusCounts{}, StatusPending},
		{"all pending", StatusCounts{Total: 3, Pending: 3}, StatusPending},
		{"one running", StatusCounts{Total: 3, Pending: 2, InProgress: 1}, StatusInProgress},
		{"partially done", StatusCounts{Total: 3, Pending: 1, Completed: 2}, StatusInProgress},
		{"all completed", StatusCounts{Total: 2, Completed: 2}, StatusCompleted},
		{"completed and cancelled", StatusCounts{Total: 3, Completed: 2, Cancelled: 1}, StatusCompleted},
		{"all cancelled", StatusCounts{Total: 2, Cancelled: 2}, StatusInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTaskStatus(tt.counts); got != tt.want {
				t.Errorf("deriveTaskStatus(%+v) = %s, want %s", tt.counts, got, tt.want)
			}
		})
	}
}
