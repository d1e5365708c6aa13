package board

import (
	"errors"
	"testing"
)

func TestProjectStatus_Tree(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	design := mustCreateTask(t, store, "demo", "design", 0, nil)
	build := mustCreateTask(t, store, "demo", "build", 1, nil)
	d1 := mustCreateTodo(t, store, design.ID, "sketch", 0, nil, nil)
	mustCreateTodo(t, store, design.ID, "review", 1, nil, nil)
	mustCreateTodo(t, store, build.ID, "code", 0, nil, nil)

	mustSetStatus(t, store, d1.ID, StatusInProgress, "agent-1")
	mustSetStatus(t, store, d1.ID, StatusCompleted, "agent-1")

	status, err := store.ProjectStatus("demo")
	if err != nil {
		t.Fatalf("ProjectStatus: %v", err)
	}
	if len(status.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(status.Tasks))
	}
	if status.Tasks[0].Task.Name != "design" {
		t.Errorf("first task = %q, want design (order)", status.Tasks[0].Task.Name)
	}
	if len(status.Tasks[0].TodoItems) != 2 {
		t.Errorf("design todos = %d, want 2", len(status.Tasks[0].TodoItems))
	}

	designStats := status.Tasks[0].Stats
	if designStats.Total != 2 || designStats.Completed != 1 || designStats.Pending != 1 {
		t.Errorf("design stats = %+v, want total 2, completed 1, pending 1", designStats)
	}
	if designStats.CompletionPct != 50.0 {
		t.Errorf("design completion = %v, want 50.0", designStats.CompletionPct)
	}

	if status.Stats.Total != 3 || status.Stats.Completed != 1 {
		t.Errorf("overall stats = %+v, want total 3, completed 1", status.Stats)
	}
	if status.Stats.CompletionPct != 33.3 {
		t.Errorf("overall completion = %v, want 33.3", status.Stats.CompletionPct)
	}
}

func TestProjectStatus_UnknownProject(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ProjectStatus("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ProjectStatus: got %v, want ErrNotFound", err)
	}
}

func TestCompletionSummary(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "demo")
	design := mustCreateTask(t, store, "demo", "design", 0, nil)
	build := mustCreateTask(t, store, "demo", "build", 1, nil)
	d1 := mustCreateTodo(t, store, design.ID, "sketch", 0, nil, nil)
	d2 := mustCreateTodo(t, store, design.ID, "review", 1, nil, nil)
	mustCreateTodo(t, store, build.ID, "code", 0, nil, nil)

	mustSetStatus(t, store, d1.ID, StatusInProgress, "agent-1")
	mustSetStatus(t, store, d1.ID, StatusCompleted, "agent-1")
	mustSetStatus(t, store, d2.ID, StatusInProgress, "agent-2")
	mustSetStatus(t, store, d2.ID, StatusCompleted, "agent-2")

	sum, err := store.CompletionSummary("demo")
	if err != nil {
		t.Fatalf("CompletionSummary: %v", err)
	}

	if len(sum.CompletedTasks) != 1 || sum.CompletedTasks[0].Name != "design" {
		t.Errorf("completed tasks = %v, want [design]", sum.CompletedTasks)
	}
	if len(sum.CompletedTodos) != 2 {
		t.Fatalf("completed todos = %d, want 2", len(sum.CompletedTodos))
	}
	if sum.CompletedTodos[0].Name != "sketch" || sum.CompletedTodos[0].CompletedBy != "agent-1" {
		t.Errorf("first completed todo = %+v, want sketch by agent-1", sum.CompletedTodos[0])
	}
	if sum.CompletedTodos[0].TaskName != "design" {
		t.Errorf("TaskName = %q, want design", sum.CompletedTodos[0].TaskName)
	}

	if len(sum.AgentStats) != 2 {
		t.Fatalf("agent stats = %d, want 2", len(sum.AgentStats))
	}
	// agent-2 completed the design task via the aggregate cascade.
	for _, stat := range sum.AgentStats {
		if stat.TodosCompleted != 1 {
			t.Errorf("%s todos completed = %d, want 1", stat.AgentID, stat.TodosCompleted)
		}
		if stat.AgentID == "agent-2" && stat.TasksCompleted != 1 {
			t.Errorf("agent-2 tasks completed = %d, want 1", stat.TasksCompleted)
		}
	}

	if sum.Tasks.Total != 2 || sum.Tasks.Completed != 1 || sum.Tasks.Pending != 1 {
		t.Errorf("task progress = %+v, want total 2, completed 1, pending 1", sum.Tasks)
	}
	if sum.Todos.Total != 3 || sum.Todos.Completed != 2 || sum.Todos.Pending != 1 {
		t.Errorf("todo progress = %+v, want total 3, completed 2, pending 1", sum.Todos)
	}
	if sum.OverallPct != 50.0 {
		t.Errorf("overall = %v, want 50.0", sum.OverallPct)
	}
}

func TestCompletionSummary_EmptyProject(t *testing.T) {
	store := newTestStore(t)
	mustCreateProject(t, store, "empty")

	sum, err := store.CompletionSummary("empty")
	if err != nil {
		t.Fatalf("CompletionSummary: %v", err)
	}
	if len(sum.CompletedTasks) != 0 || len(sum.CompletedTodos) != 0 || len(sum.AgentStats) != 0 {
		t.Errorf("summary not empty: %+v", sum)
	}
	if sum.OverallPct != 0 {
		t.Errorf("overall = %v, want 0", sum.OverallPct)
	}
}
