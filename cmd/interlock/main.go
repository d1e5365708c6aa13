// Command interlock is the Interlock CLI client.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/signalbox/interlock/board"
	"github.com/signalbox/interlock/internal/version"
	"github.com/signalbox/interlock/update"
)

const defaultServer = "http://localhost:9090"

func main() {
	var (
		serverURL = flag.String("server", defaultServer, "interlock server URL")
		token     = flag.String("token", os.Getenv("INTERLOCK_TOKEN"), "bearer token for mutating commands")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "update":
		err = cmdUpdate(rest)
	case "status":
		err = cli.cmdStatus(rest)
	case "projects":
		err = cli.cmdProjects(rest)
	case "project":
		err = cli.cmdProject(rest)
	case "task":
		err = cli.cmdTask(rest)
	case "todo":
		err = cli.cmdTodo(rest)
	case "next":
		err = cli.cmdNext(rest)
	case "audit":
		err = cli.cmdAudit(rest)
	case "completion":
		err = cli.cmdCompletion(rest)
	case "locks":
		err = cli.cmdLocks(rest)
	case "lock":
		err = cli.cmdLock(rest)
	case "unlock":
		err = cli.cmdUnlock(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `interlock — Interlock CLI

Usage:
  interlock [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:9090)
  --token   <token>  bearer token for mutating commands (or $INTERLOCK_TOKEN)

Commands:
  version                                      print version
  update                                       self-update to the latest release
  status                                       show server status
  projects                                     list projects
  project <name>                               show a project's task tree
  project create <name> [description]          create a project
  task create <project> <name> [description]   create a task
  todo create <task-id> <title> [description]  create a todo item
  todo status <todo-id> <status> <agent-id>    update a todo item's status
  next <project> <agent-id>                    show the next claimable todo item
  audit <project>                              show recent audit events
  completion <project>                         show completion summary
  locks                                        list file locks
  lock <agent-id> <path>...                    manually lock files
  unlock <agent-id> <path>...                  release manual locks
`)
}

// --- version / update ---

func cmdVersion(_ []string) error {
	fmt.Printf("interlock %s (commit %s, built %s)\n",
		version.Version, version.Commit, version.BuildDate)
	return nil
}

func cmdUpdate(_ []string) error {
	u := update.New(version.Version)
	rel, err := u.CheckForUpdate()
	if err != nil {
		return fmt.Errorf("check for update: %w", err)
	}
	if rel == nil {
		fmt.Println("already up to date")
		return nil
	}
	fmt.Printf("updating to %s...\n", rel.Version)
	if err := u.ApplyUpdate(rel); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	fmt.Println("updated; restart to use the new version")
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// do performs a request with optional JSON body and decodes the JSON
// response into v (may be nil). A 204 leaves v untouched.
func (c *Client) do(method, path string, body io.Reader, v any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v != nil && resp.StatusCode != http.StatusNoContent && resp.ContentLength != 0 {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *Client) get(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *Client) post(path string, body string, v any) error {
	return c.do(http.MethodPost, path, strings.NewReader(body), v)
}

// --- status ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]string
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:  %s\n", result["status"])
	fmt.Printf("version: %s\n", result["version"])
	return nil
}

// --- projects ---

func (c *Client) cmdProjects(_ []string) error {
	var projects []*board.ProjectStatus
	if err := c.get("/api/projects", &projects); err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("no projects")
		return nil
	}
	fmt.Printf("%-24s %-12s %-10s %-8s %-30s\n", "NAME", "STATUS", "TODOS", "DONE", "DESCRIPTION")
	fmt.Println(strings.Repeat("-", 88))
	for _, st := range projects {
		fmt.Printf("%-24s %-12s %-10s %-8s %-30s\n",
			truncate(st.Project.Name, 23),
			st.Project.Status,
			fmt.Sprintf("%d/%d", st.Stats.Completed, st.Stats.Total),
			fmt.Sprintf("%.0f%%", st.Stats.CompletionPct),
			truncate(st.Project.Description, 29),
		)
	}
	return nil
}

func (c *Client) cmdProject(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: interlock project <name> | project create <name> [description]")
	}
	if args[0] == "create" {
		if len(args) < 2 {
			return fmt.Errorf("usage: interlock project create <name> [description]")
		}
		body := fmt.Sprintf(`{"name":%q,"description":%q}`, args[1], strings.Join(args[2:], " "))
		var p board.Project
		if err := c.post("/api/projects", body, &p); err != nil {
			return err
		}
		fmt.Printf("created project %s (%s)\n", p.Name, p.ID)
		return nil
	}

	var st board.ProjectStatus
	if err := c.get("/api/projects/"+args[0], &st); err != nil {
		return err
	}
	fmt.Printf("%s — %s (%.1f%% complete, %d/%d todos)\n",
		st.Project.Name, st.Project.Status,
		st.Stats.CompletionPct, st.Stats.Completed, st.Stats.Total)
	for _, ts := range st.Tasks {
		fmt.Printf("\n  [%d] %-30s %-12s %d/%d\n",
			ts.Task.Order, truncate(ts.Task.Name, 29), ts.Task.Status,
			ts.Stats.Completed, ts.Stats.Total)
		for _, todo := range ts.TodoItems {
			agent := todo.AssignedAgent
			if agent != "" {
				agent = "@" + agent
			}
			fmt.Printf("      [%d] %-34s %-12s %s\n",
				todo.Order, truncate(todo.Title, 33), todo.Status, agent)
		}
	}
	return nil
}

// --- tasks / todos ---

func (c *Client) cmdTask(args []string) error {
	if len(args) < 3 || args[0] != "create" {
		return fmt.Errorf("usage: interlock task create <project> <name> [description]")
	}
	project, name := args[1], args[2]
	body := fmt.Sprintf(`{"name":%q,"description":%q}`, name, strings.Join(args[3:], " "))
	var t board.Task
	if err := c.post("/api/projects/"+project+"/tasks", body, &t); err != nil {
		return err
	}
	fmt.Printf("created task %s (%s)\n", t.Name, t.ID)
	return nil
}

func (c *Client) cmdTodo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: interlock todo <create|status> ...")
	}
	switch args[0] {
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("usage: interlock todo create <task-id> <title> [description]")
		}
		taskID, title := args[1], args[2]
		body := fmt.Sprintf(`{"title":%q,"description":%q}`, title, strings.Join(args[3:], " "))
		var item board.TodoItem
		if err := c.post("/api/tasks/"+taskID+"/todos", body, &item); err != nil {
			return err
		}
		fmt.Printf("created todo %s (%s)\n", item.Title, item.ID)
	case "status":
		if len(args) < 4 {
			return fmt.Errorf("usage: interlock todo status <todo-id> <status> <agent-id>")
		}
		todoID, status, agent := args[1], args[2], args[3]
		body := fmt.Sprintf(`{"status":%q,"agent_id":%q}`, status, agent)
		var item board.TodoItem
		if err := c.post("/api/todos/"+todoID+"/status", body, &item); err != nil {
			return err
		}
		fmt.Printf("todo %s is now %s\n", item.Title, item.Status)
	default:
		return fmt.Errorf("unknown todo subcommand: %s", args[0])
	}
	return nil
}

func (c *Client) cmdNext(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: interlock next <project> <agent-id>")
	}
	path := fmt.Sprintf("/api/next?project=%s&agent=%s", args[0], args[1])
	var item board.TodoItem
	if err := c.get(path, &item); err != nil {
		return err
	}
	if item.ID == "" {
		fmt.Println("no todo items available")
		return nil
	}
	fmt.Printf("%s\n  id:    %s\n  task:  %s\n", item.Title, item.ID, item.TaskID)
	if len(item.Files) > 0 {
		fmt.Printf("  files: %s\n", strings.Join(item.Files, ", "))
	}
	fmt.Printf("claim it with: interlock todo status %s in_progress %s\n", item.ID, args[1])
	return nil
}

// --- audit / completion ---

func (c *Client) cmdAudit(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: interlock audit <project>")
	}
	var trail board.AuditTrail
	if err := c.get("/api/projects/"+args[0]+"/audit", &trail); err != nil {
		return err
	}
	if len(trail.Events) == 0 {
		fmt.Println("no events")
		return nil
	}
	fmt.Printf("%-20s %-16s %-10s %-26s %-12s\n", "TIME", "EVENT", "ENTITY", "NAME", "AGENT")
	fmt.Println(strings.Repeat("-", 88))
	for _, ev := range trail.Events {
		fmt.Printf("%-20s %-16s %-10s %-26s %-12s\n",
			ev.CreatedAt.Format("2006-01-02 15:04:05"),
			displayName(string(ev.Type)), ev.EntityType,
			truncate(ev.EntityName, 25),
			truncate(ev.AgentID, 11),
		)
	}
	return nil
}

func (c *Client) cmdCompletion(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: interlock completion <project>")
	}
	var sum board.CompletionSummary
	if err := c.get("/api/projects/"+args[0]+"/completion", &sum); err != nil {
		return err
	}
	fmt.Printf("%s: %.1f%% complete\n", sum.Project.Name, sum.OverallPct)
	fmt.Printf("tasks: %d/%d completed   todos: %d/%d completed\n",
		sum.Tasks.Completed, sum.Tasks.Total,
		sum.Todos.Completed, sum.Todos.Total)
	if len(sum.AgentStats) > 0 {
		fmt.Printf("\n%-20s %-8s %-8s %-20s\n", "AGENT", "TASKS", "TODOS", "LAST COMPLETION")
		fmt.Println(strings.Repeat("-", 60))
		for _, st := range sum.AgentStats {
			fmt.Printf("%-20s %-8d %-8d %-20s\n",
				truncate(st.AgentID, 19),
				st.TasksCompleted, st.TodosCompleted,
				st.LastCompletion.Format("2006-01-02 15:04:05"),
			)
		}
	}
	return nil
}

// --- locks ---

func (c *Client) cmdLocks(_ []string) error {
	var locks []*board.FileLock
	if err := c.get("/api/locks", &locks); err != nil {
		return err
	}
	if len(locks) == 0 {
		fmt.Println("no file locks")
		return nil
	}
	fmt.Printf("%-40s %-16s %-10s\n", "PATH", "AGENT", "HELD FOR")
	fmt.Println(strings.Repeat("-", 68))
	for _, l := range locks {
		heldFor := "manual"
		if l.LockedFor != "" {
			heldFor = "todo"
		}
		fmt.Printf("%-40s %-16s %-10s\n", truncate(l.Path, 39), truncate(l.LockedBy, 15), heldFor)
	}
	return nil
}

func (c *Client) cmdLock(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: interlock lock <agent-id> <path>...")
	}
	body, _ := json.Marshal(map[string]any{"agent_id": args[0], "paths": args[1:]})
	if err := c.post("/api/locks", string(body), nil); err != nil {
		return err
	}
	fmt.Printf("locked %d path(s) for %s\n", len(args)-1, args[0])
	return nil
}

func (c *Client) cmdUnlock(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: interlock unlock <agent-id> <path>...")
	}
	body, _ := json.Marshal(map[string]any{"agent_id": args[0], "paths": args[1:]})
	var resp map[string][]string
	if err := c.do(http.MethodDelete, "/api/locks", strings.NewReader(string(body)), &resp); err != nil {
		return err
	}
	fmt.Printf("released %d path(s)\n", len(resp["released"]))
	return nil
}

// --- helpers ---

// displayName turns an event type like "project_created" into "Project Created".
func displayName(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
