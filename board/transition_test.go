package board

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestSetStatus_ClaimAssignsAgentAndLocks(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "parser", 0, nil, []string{"parser.go", "lexer.go"})

	claimed, err := store.SetStatus(item.ID, StatusInProgress, "agent-1")
	if err != nil {
		t.Fatalf("SetStatus claim: %v", err)
	}
	if claimed.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", claimed.Status, StatusInProgress)
	}
	if claimed.AssignedAgent != "agent-1" {
		t.Errorf("AssignedAgent = %q, want agent-1", claimed.AssignedAgent)
	}

	locks, err := store.CheckFileLocks([]string{"parser.go", "lexer.go"})
	if err != nil {
		t.Fatalf("CheckFileLocks: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("locked %d paths, want 2", len(locks))
	}
	for path, lock := range locks {
		if lock.LockedBy != "agent-1" || lock.LockedFor != item.ID {
			t.Errorf("%s locked by %q for %q, want agent-1 for %s", path, lock.LockedBy, lock.LockedFor, item.ID)
		}
	}
}

func TestSetStatus_IllegalTransitions(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)

	tests := []struct {
		name string
		prep func(t *testing.T, s *SQLiteStore, id string)
		to   Status
	}{
		{"pending to completed", nil, StatusCompleted},
		{"pending to cancelled", nil, StatusCancelled},
		{"pending to pending", nil, StatusPending},
		{"in_progress to pending", func(t *testing.T, s *SQLiteStore, id string) {
			mustSetStatus(t, s, id, StatusInProgress, "agent-1")
		}, StatusPending},
		{"completed to in_progress", func(t *testing.T, s *SQLiteStore, id string) {
			mustSetStatus(t, s, id, StatusInProgress, "agent-1")
			mustSetStatus(t, s, id, StatusCompleted, "agent-1")
		}, StatusInProgress},
		{"completed to cancelled", func(t *testing.T, s *SQLiteStore, id string) {
			mustSetStatus(t, s, id, StatusInProgress, "agent-1")
			mustSetStatus(t, s, id, StatusCompleted, "agent-1")
		}, StatusCancelled},
		{"cancelled to in_progress", func(t *testing.T, s *SQLiteStore, id string) {
			mustSetStatus(t, s, id, StatusInProgress, "agent-1")
			mustSetStatus(t, s, id, StatusCancelled, "agent-1")
		}, StatusInProgress},
		{"cancelled to completed", func(t *testing.T, s *SQLiteStore, id string) {
			mustSetStatus(t, s, id, StatusInProgress, "agent-1")
			mustSetStatus(t, s, id, StatusCancelled, "agent-1")
		}, StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := mustCreateTodo(t, store, task.ID, "todo "+tt.name, 0, nil, nil)
			if tt.prep != nil {
				tt.prep(t, store, item.ID)
			}
			before, err := store.GetTodo(item.ID)
			if err != nil {
				t.Fatalf("GetTodo: %v", err)
			}
			if _, err := store.SetStatus(item.ID, tt.to, "agent-1"); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("SetStatus: got %v, want ErrInvalidTransition", err)
			}
			after, err := store.GetTodo(item.ID)
			if err != nil {
				t.Fatalf("GetTodo: %v", err)
			}
			if after.Status != before.Status {
				t.Errorf("status changed from %q to %q on rejected transition", before.Status, after.Status)
			}
		})
	}
}

func TestSetStatus_UnknownStatus(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, nil)

	var inputErr *InputError
	if _, err := store.SetStatus(item.ID, Status("paused"), "agent-1"); !errors.As(err, &inputErr) {
		t.Fatalf("SetStatus: got %v, want InputError", err)
	}
}

func TestSetStatus_SecondClaimLoses(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, nil)

	mustSetStatus(t, store, item.ID, StatusInProgress, "agent-1")

	_, err := store.SetStatus(item.ID, StatusInProgress, "agent-2")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim: got %v, want ErrAlreadyClaimed", err)
	}

	got, _ := store.GetTodo(item.ID)
	if got.AssignedAgent != "agent-1" {
		t.Errorf("AssignedAgent = %q, want agent-1", got.AssignedAgent)
	}
}

func TestSetStatus_ClaimWithUnmetDependency(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	dep := mustCreateTodo(t, store, task.ID, "dep", 0, nil, nil)
	item := mustCreateTodo(t, store, task.ID, "blocked", 1, []string{dep.ID}, nil)

	if _, err := store.SetStatus(item.ID, StatusInProgress, "agent-1"); !errors.Is(err, ErrDependencyUnmet) {
		t.Fatalf("claim: got %v, want ErrDependencyUnmet", err)
	}

	// A cancelled dependency never satisfies the claim.
	mustSetStatus(t, store, dep.ID, StatusInProgress, "agent-1")
	mustSetStatus(t, store, dep.ID, StatusCancelled, "agent-1")
	if _, err := store.SetStatus(item.ID, StatusInProgress, "agent-1"); !errors.Is(err, ErrDependencyUnmet) {
		t.Fatalf("claim after cancel: got %v, want ErrDependencyUnmet", err)
	}
}

func TestSetStatus_ClaimWithTaskDependency(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	taskA := mustCreateTask(t, store, "demo", "design", 0, nil)
	todoA := mustCreateTodo(t, store, taskA.ID, "draw", 0, nil, nil)
	taskB := mustCreateTask(t, store, "demo", "build", 1, []string{taskA.ID})
	todoB := mustCreateTodo(t, store, taskB.ID, "code", 0, nil, nil)

	if _, err := store.SetStatus(todoB.ID, StatusInProgress, "agent-1"); !errors.Is(err, ErrDependencyUnmet) {
		t.Fatalf("claim: got %v, want ErrDependencyUnmet", err)
	}

	mustSetStatus(t, store, todoA.ID, StatusInProgress, "agent-2")
	mustSetStatus(t, store, todoA.ID, StatusCompleted, "agent-2")

	if _, err := store.SetStatus(todoB.ID, StatusInProgress, "agent-1"); err != nil {
		t.Fatalf("claim after task completion: %v", err)
	}
}

func TestSetStatus_ClaimBlockedByManualLock(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, []string{"shared.go"})

	if err := store.LockFiles([]string{"shared.go"}, "agent-2"); err != nil {
		t.Fatalf("LockFiles: %v", err)
	}

	if _, err := store.SetStatus(item.ID, StatusInProgress, "agent-1"); !errors.Is(err, ErrLockConflict) {
		t.Fatalf("claim: got %v, want ErrLockConflict", err)
	}
	got, _ := store.GetTodo(item.ID)
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want pending after failed claim", got.Status)
	}

	// Releasing the manual lock unblocks the claim.
	if _, err := store.UnlockFiles([]string{"shared.go"}, "agent-2"); err != nil {
		t.Fatalf("UnlockFiles: %v", err)
	}
	if _, err := store.SetStatus(item.ID, StatusInProgress, "agent-1"); err != nil {
		t.Fatalf("claim after unlock: %v", err)
	}
}

func TestSetStatus_ClaimConvertsOwnManualLock(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, []string{"mine.go"})

	if err := store.LockFiles([]string{"mine.go"}, "agent-1"); err != nil {
		t.Fatalf("LockFiles: %v", err)
	}
	mustSetStatus(t, store, item.ID, StatusInProgress, "agent-1")

	locks, err := store.CheckFileLocks([]string{"mine.go"})
	if err != nil {
		t.Fatalf("CheckFileLocks: %v", err)
	}
	lock := locks["mine.go"]
	if lock == nil {
		t.Fatal("mine.go not locked after claim")
	}
	if lock.LockedFor != item.ID {
		t.Errorf("LockedFor = %q, want %s", lock.LockedFor, item.ID)
	}
}

func TestSetStatus_CompleteReleasesLocks(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, []string{"a.go", "b.go"})

	mustSetStatus(t, store, item.ID, StatusInProgress, "agent-1")
	done := mustSetStatus(t, store, item.ID, StatusCompleted, "agent-1")

	if done.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", done.Status)
	}
	if done.AssignedAgent != "" {
		t.Errorf("AssignedAgent = %q, want empty after completion", done.AssignedAgent)
	}
	locks, err := store.CheckFileLocks([]string{"a.go", "b.go"})
	if err != nil {
		t.Fatalf("CheckFileLocks: %v", err)
	}
	if len(locks) != 0 {
		t.Errorf("still locked after completion: %v", locks)
	}
}

func TestSetStatus_CancelReleasesLocks(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, []string{"a.go"})

	mustSetStatus(t, store, item.ID, StatusInProgress, "agent-1")
	mustSetStatus(t, store, item.ID, StatusCancelled, "agent-1")

	locks, err := store.CheckFileLocks([]string{"a.go"})
	if err != nil {
		t.Fatalf("CheckFileLocks: %v", err)
	}
	if len(locks) != 0 {
		t.Errorf("still locked after cancel: %v", locks)
	}
}

func TestSetStatus_CompleteByOtherAgent(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, nil)

	mustSetStatus(t, store, item.ID, StatusInProgress, "agent-1")

	if _, err := store.SetStatus(item.ID, StatusCompleted, "agent-2"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("complete by other agent: got %v, want ErrAlreadyClaimed", err)
	}
}

func TestSetStatus_TakeoverWhenAllowed(t *testing.T) {
	store := newTestStore(t, WithTakeover(true))
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "x", 0, nil, nil)

	mustSetStatus(t, store, item.ID, StatusInProgress, "agent-1")
	done, err := store.SetStatus(item.ID, StatusCancelled, "operator")
	if err != nil {
		t.Fatalf("takeover cancel: %v", err)
	}
	if done.Status != StatusCancelled {
		t.Errorf("Status = %q, want cancelled", done.Status)
	}
}

func TestSetStatus_TaskAggregate(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	a := mustCreateTodo(t, store, task.ID, "a", 0, nil, nil)
	b := mustCreateTodo(t, store, task.ID, "b", 1, nil, nil)

	if got, _ := store.GetTask(task.ID); got.Status != StatusPending {
		t.Fatalf("task starts %q, want pending", got.Status)
	}

	mustSetStatus(t, store, a.ID, StatusInProgress, "agent-1")
	if got, _ := store.GetTask(task.ID); got.Status != StatusInProgress {
		t.Errorf("task = %q after first claim, want in_progress", got.Status)
	}

	mustSetStatus(t, store, a.ID, StatusCompleted, "agent-1")
	if got, _ := store.GetTask(task.ID); got.Status != StatusInProgress {
		t.Errorf("task = %q with one todo left, want in_progress", got.Status)
	}

	mustSetStatus(t, store, b.ID, StatusInProgress, "agent-2")
	mustSetStatus(t, store, b.ID, StatusCancelled, "agent-2")
	if got, _ := store.GetTask(task.ID); got.Status != StatusCompleted {
		t.Errorf("task = %q with completed+cancelled todos, want completed", got.Status)
	}
}

func TestSetStatus_TaskAggregateAllCancelled(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	a := mustCreateTodo(t, store, task.ID, "a", 0, nil, nil)

	mustSetStatus(t, store, a.ID, StatusInProgress, "agent-1")
	mustSetStatus(t, store, a.ID, StatusCancelled, "agent-1")

	// Nothing completed, so the task never reaches completed.
	if got, _ := store.GetTask(task.ID); got.Status != StatusInProgress {
		t.Errorf("task = %q with all todos cancelled, want in_progress", got.Status)
	}
}

func TestSetStatus_NewTodoReopensCompletedTask(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	a := mustCreateTodo(t, store, task.ID, "a", 0, nil, nil)

	mustSetStatus(t, store, a.ID, StatusInProgress, "agent-1")
	mustSetStatus(t, store, a.ID, StatusCompleted, "agent-1")
	if got, _ := store.GetTask(task.ID); got.Status != StatusCompleted {
		t.Fatalf("task = %q, want completed", got.Status)
	}

	mustCreateTodo(t, store, task.ID, "follow-up", 1, nil, nil)
	if got, _ := store.GetTask(task.ID); got.Status != StatusInProgress {
		t.Errorf("task = %q after new todo, want in_progress", got.Status)
	}
}

func TestSetStatus_ConcurrentClaims(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	item := mustCreateTodo(t, store, task.ID, "contested", 0, nil, nil)

	const agents = 8
	results := make(chan error, agents)
	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.SetStatus(item.ID, StatusInProgress, fmt.Sprintf("agent-%d", n))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyClaimed):
			losses++
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if losses != agents-1 {
		t.Errorf("losses = %d, want %d", losses, agents-1)
	}
}

func TestSetStatus_ConcurrentOverlappingFiles(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	task := mustCreateTask(t, store, "demo", "build", 0, nil)
	a := mustCreateTodo(t, store, task.ID, "a", 0, nil, []string{"shared.go"})
	b := mustCreateTodo(t, store, task.ID, "b", 1, nil, []string{"shared.go"})

	var wg sync.WaitGroup
	errA := make(chan error, 1)
	errB := make(chan error, 1)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := store.SetStatus(a.ID, StatusInProgress, "agent-1")
		errA <- err
	}()
	go func() {
		defer wg.Done()
		_, err := store.SetStatus(b.ID, StatusInProgress, "agent-2")
		errB <- err
	}()
	wg.Wait()

	ea, eb := <-errA, <-errB
	if ea == nil && eb == nil {
		t.Fatal("both overlapping claims succeeded")
	}
	if ea != nil && eb != nil {
		t.Fatalf("both overlapping claims failed: %v / %v", ea, eb)
	}
	failed := ea
	if failed == nil {
		failed = eb
	}
	if !errors.Is(failed, ErrLockConflict) {
		t.Errorf("losing claim: got %v, want ErrLockConflict", failed)
	}

	locks, err := store.CheckFileLocks([]string{"shared.go"})
	if err != nil {
		t.Fatalf("CheckFileLocks: %v", err)
	}
	if len(locks) != 1 {
		t.Fatalf("shared.go lock rows = %d, want 1", len(locks))
	}
}
