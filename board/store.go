package board

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const createProjectsTable = `
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'in_progress',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
)`

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL REFERENCES projects(id),
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	order_index INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled')),
	depends_on  TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
)`

const createTodoItemsTable = `
CREATE TABLE IF NOT EXISTS todo_items (
	id             TEXT PRIMARY KEY,
	task_id        TEXT NOT NULL REFERENCES tasks(id),
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	order_index    INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled')),
	depends_on     TEXT NOT NULL DEFAULT '[]',
	files          TEXT NOT NULL DEFAULT '[]',
	assigned_agent TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
)`

const createFileLocksTable = `
CREATE TABLE IF NOT EXISTS file_locks (
	path       TEXT PRIMARY KEY,
	locked_by  TEXT NOT NULL,
	locked_for TEXT NOT NULL DEFAULT '',
	locked_at  DATETIME NOT NULL
)`

const createAuditEventsTable = `
CREATE TABLE IF NOT EXISTS audit_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type   TEXT NOT NULL,
	entity_type  TEXT NOT NULL,
	entity_id    TEXT NOT NULL DEFAULT '',
	entity_name  TEXT NOT NULL DEFAULT '',
	old_status   TEXT NOT NULL DEFAULT '',
	new_status   TEXT NOT NULL DEFAULT '',
	agent_id     TEXT NOT NULL DEFAULT '',
	project_name TEXT NOT NULL DEFAULT '',
	task_name    TEXT NOT NULL DEFAULT '',
	details      TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL
)`

const createSchemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
)`

var createIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, order_index)`,
	`CREATE INDEX IF NOT EXISTS idx_todo_items_task ON todo_items(task_id, order_index)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_project_time ON audit_events(project_name, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_entity ON audit_events(entity_type, entity_id, created_at DESC)`,
}

// migrations run once each, in order, gated by the schema_version table.
var migrations = []struct {
	version int
	sql     string
}{
	// v1: release all of a todo's locks by holder on terminal transitions
	{1, `CREATE INDEX IF NOT EXISTS idx_file_locks_holder ON file_locks(locked_for)`},
}

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db            *sql.DB
	allowTakeover bool
	notify        func([]*AuditEvent)
}

var _ Store = (*SQLiteStore)(nil)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithTakeover permits terminal transitions by agents other than the
// assignee. Meant for operator cleanup of abandoned work; locks never
// expire on their own.
func WithTakeover(allow bool) Option {
	return func(s *SQLiteStore) { s.allowTakeover = allow }
}

// WithNotifier registers fn to receive each mutation's audit events after
// its transaction commits. fn runs on the mutating goroutine and must not
// block for long.
func WithNotifier(fn func([]*AuditEvent)) Option {
	return func(s *SQLiteStore) { s.notify = fn }
}

// NewSQLiteStore opens or creates the coordination database at dbPath.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Serialize all access through a single connection to prevent
	// SQLITE_BUSY errors under concurrent writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) applySchema() error {
	ddl := []string{
		createProjectsTable,
		createTasksTable,
		createTodoItemsTable,
		createFileLocksTable,
		createAuditEventsTable,
		createSchemaVersionTable,
	}
	for _, stmt := range ddl {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, stmt := range createIndexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	for _, m := range migrations {
		var applied int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version WHERE version = ?`, m.version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if applied > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// withTx runs fn in a transaction. On commit the audit events fn recorded
// are handed to the notifier, so observers only ever see durable changes.
func (s *SQLiteStore) withTx(fn func(tx *sql.Tx) ([]*AuditEvent, error)) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := fn(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	if s.notify != nil && len(events) > 0 {
		s.notify(events)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// recordEvent appends ev to the audit trail within tx, filling in its
// assigned ID and timestamp.
func recordEvent(tx *sql.Tx, ev *AuditEvent) error {
	details := "{}"
	if len(ev.Details) > 0 {
		b, err := json.Marshal(ev.Details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		details = string(b)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	res, err := tx.Exec(`INSERT INTO audit_events
		(event_type, entity_type, entity_id, entity_name, old_status, new_status,
		 agent_id, project_name, task_name, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.EntityType, ev.EntityID, ev.EntityName,
		string(ev.OldStatus), string(ev.NewStatus), ev.AgentID,
		ev.ProjectName, ev.TaskName, details, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit event id: %w", err)
	}
	ev.ID = id
	return nil
}

// scanner abstracts sql.Row and sql.Rows so scan helpers serve both.
type scanner interface {
	Scan(dest ...any) error
}

// querier is the subset of sql.DB and sql.Tx shared by read helpers.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

func scanProject(sc scanner) (*Project, error) {
	var p Project
	var status string
	if err := sc.Scan(&p.ID, &p.Name, &p.Description, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}

func scanTask(sc scanner) (*Task, error) {
	var t Task
	var status, deps string
	if err := sc.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Order,
		&status, &deps, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
		return nil, fmt.Errorf("unmarshal task dependencies: %w", err)
	}
	return &t, nil
}

func scanTodo(sc scanner) (*TodoItem, error) {
	var item TodoItem
	var status, deps, files string
	if err := sc.Scan(&item.ID, &item.TaskID, &item.Title, &item.Description, &item.Order,
		&status, &deps, &files, &item.AssignedAgent, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Status = Status(status)
	if err := json.Unmarshal([]byte(deps), &item.DependsOn); err != nil {
		return nil, fmt.Errorf("unmarshal todo dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &item.Files); err != nil {
		return nil, fmt.Errorf("unmarshal todo files: %w", err)
	}
	return &item, nil
}

func scanLock(sc scanner) (*FileLock, error) {
	var l FileLock
	if err := sc.Scan(&l.Path, &l.LockedBy, &l.LockedFor, &l.LockedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanEvent(sc scanner) (*AuditEvent, error) {
	var ev AuditEvent
	var typ, oldStatus, newStatus, details string
	if err := sc.Scan(&ev.ID, &typ, &ev.EntityType, &ev.EntityID, &ev.EntityName,
		&oldStatus, &newStatus, &ev.AgentID, &ev.ProjectName, &ev.TaskName,
		&details, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Type = EventType(typ)
	ev.OldStatus = Status(oldStatus)
	ev.NewStatus = Status(newStatus)
	if details != "" && details != "{}" {
		if err := json.Unmarshal([]byte(details), &ev.Details); err != nil {
			return nil, fmt.Errorf("unmarshal event details: %w", err)
		}
	}
	return &ev, nil
}
