package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/signalbox/interlock/board"
	"github.com/signalbox/interlock/comms"
)

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Store   board.Store
	Bus     comms.Bus
	Logger  *slog.Logger
	Version string
}

// RegisterReadRoutes registers the read-only API routes on the given mux.
func (h *Handlers) RegisterReadRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects", h.listProjects)
	mux.HandleFunc("GET /api/projects/{name}", h.getProjectStatus)
	mux.HandleFunc("GET /api/projects/{name}/audit", h.getAuditTrail)
	mux.HandleFunc("GET /api/projects/{name}/completion", h.getCompletionSummary)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("GET /api/todos/{id}", h.getTodo)
	mux.HandleFunc("GET /api/next", h.nextTodo)
	mux.HandleFunc("GET /api/locks", h.listLocks)
	mux.HandleFunc("GET /api/locks/check", h.checkLocks)
	mux.HandleFunc("GET /api/events/recent", h.recentEvents)
	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// RegisterWriteRoutes registers the mutating API routes on the given mux.
// The server wraps these in its auth middleware.
func (h *Handlers) RegisterWriteRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects", h.createProject)
	mux.HandleFunc("POST /api/projects/{name}/tasks", h.createTask)
	mux.HandleFunc("POST /api/tasks/{id}/todos", h.createTodo)
	mux.HandleFunc("POST /api/todos/{id}/status", h.updateTodoStatus)
	mux.HandleFunc("POST /api/locks", h.lockFiles)
	mux.HandleFunc("DELETE /api/locks", h.unlockFiles)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps a store error onto an HTTP status code.
func writeStoreError(w http.ResponseWriter, err error) {
	var inputErr *board.InputError
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, board.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrAlreadyExists),
		errors.Is(err, board.ErrAlreadyClaimed),
		errors.Is(err, board.ErrLockConflict),
		errors.Is(err, board.ErrInvalidTransition),
		errors.Is(err, board.ErrDependencyUnmet):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- Request bodies ---

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createTaskRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Order       int      `json:"order"`
	DependsOn   []string `json:"depends_on"`
}

type createTodoRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Order       int      `json:"order"`
	DependsOn   []string `json:"depends_on"`
	Files       []string `json:"files"`
	// InsertAfter positions the new item instead of appending: the
	// empty string inserts at the head of the task, any other value
	// inserts after that todo ID.
	InsertAfter *string `json:"insert_after,omitempty"`
}

type statusRequest struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id"`
}

type lockRequest struct {
	Paths   []string `json:"paths"`
	AgentID string   `json:"agent_id"`
}

// --- Project handlers ---

// listProjects returns every project as a full tree with stats, the shape
// the dashboard renders from in one request.
func (h *Handlers) listProjects(w http.ResponseWriter, _ *http.Request) {
	projects, err := h.Store.ListProjects()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	statuses := make([]*board.ProjectStatus, 0, len(projects))
	for _, p := range projects {
		st, err := h.Store.ProjectStatus(p.Name)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		statuses = append(statuses, st)
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handlers) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := h.Store.CreateProject(req.Name, req.Description)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) getProjectStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.ProjectStatus(r.PathValue("name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) getAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := board.AuditFilter{
		Type:    board.EventType(q.Get("type")),
		AgentID: q.Get("agent"),
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	trail, err := h.Store.AuditTrail(r.PathValue("name"), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (h *Handlers) getCompletionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Store.CompletionSummary(r.PathValue("name"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Task handlers ---

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := h.Store.CreateTask(r.PathValue("name"), req.Name, req.Description, req.Order, req.DependsOn)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.GetTask(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- Todo handlers ---

func (h *Handlers) createTodo(w http.ResponseWriter, r *http.Request) {
	var req createTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	taskID := r.PathValue("id")

	var item *board.TodoItem
	var err error
	if req.InsertAfter != nil {
		item, err = h.Store.InsertTodo(taskID, req.Title, req.Description, *req.InsertAfter, req.DependsOn, req.Files)
	} else {
		item, err = h.Store.CreateTodo(taskID, req.Title, req.Description, req.Order, req.DependsOn, req.Files)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handlers) getTodo(w http.ResponseWriter, r *http.Request) {
	item, err := h.Store.GetTodo(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) updateTodoStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	status, err := board.ParseStatus(req.Status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	item, err := h.Store.SetStatus(r.PathValue("id"), status, req.AgentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// nextTodo returns the first claimable todo item for an agent. The scan
// does not claim; a 204 means nothing is currently available.
func (h *Handlers) nextTodo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project, agent := q.Get("project"), q.Get("agent")
	if project == "" || agent == "" {
		writeError(w, http.StatusBadRequest, "project and agent query parameters are required")
		return
	}
	item, err := h.Store.NextAvailable(project, agent)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if item == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// --- Lock handlers ---

func (h *Handlers) listLocks(w http.ResponseWriter, _ *http.Request) {
	locks, err := h.Store.ListLocks()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if locks == nil {
		locks = []*board.FileLock{}
	}
	writeJSON(w, http.StatusOK, locks)
}

func (h *Handlers) checkLocks(w http.ResponseWriter, r *http.Request) {
	paths := r.URL.Query()["path"]
	held, err := h.Store.CheckFileLocks(paths)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if held == nil {
		held = map[string]*board.FileLock{}
	}
	writeJSON(w, http.StatusOK, held)
}

func (h *Handlers) lockFiles(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.Store.LockFiles(req.Paths, req.AgentID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) unlockFiles(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	released, err := h.Store.UnlockFiles(req.Paths, req.AgentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if released == nil {
		released = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"released": released})
}

// --- Event handlers ---

func (h *Handlers) recentEvents(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	var events []*board.AuditEvent
	if h.Bus != nil {
		events = h.Bus.History(project, limit)
	}
	if events == nil {
		events = []*board.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
