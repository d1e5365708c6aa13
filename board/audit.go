package board

import (
	"database/sql"
	"fmt"
	"strings"
)

const eventColumns = `id, event_type, entity_type, entity_id, entity_name,
	old_status, new_status, agent_id, project_name, task_name, details, created_at`

// AuditTrail returns a slice of the project's audit history, newest
// first. Milestones collect the creation and completion events oldest
// first, regardless of the filter.
func (s *SQLiteStore) AuditTrail(projectName string, f AuditFilter) (*AuditTrail, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	var out *AuditTrail
	err := s.withTx(func(tx *sql.Tx) ([]*AuditEvent, error) {
		p, err := projectByName(tx, projectName)
		if err != nil {
			return nil, err
		}
		trail := &AuditTrail{ProjectName: p.Name}

		var query strings.Builder
		query.WriteString(`SELECT ` + eventColumns + ` FROM audit_events WHERE project_name = ?`)
		args := []any{p.Name}
		if f.Type != "" {
			query.WriteString(` AND event_type = ?`)
			args = append(args, string(f.Type))
		}
		if f.AgentID != "" {
			query.WriteString(` AND agent_id = ?`)
			args = append(args, f.AgentID)
		}
		query.WriteString(fmt.Sprintf(` ORDER BY id DESC LIMIT %d`, limit))
		trail.Events, err = queryEvents(tx, query.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("query audit trail: %w", err)
		}

		trail.Milestones, err = queryEvents(tx, `SELECT `+eventColumns+` FROM audit_events
			WHERE project_name = ?
			AND (event_type IN ('project_created', 'task_created')
				OR (event_type = 'status_change' AND new_status = 'completed'))
			ORDER BY id`, p.Name)
		if err != nil {
			return nil, fmt.Errorf("query milestones: %w", err)
		}

		rows, err := tx.Query(`SELECT entity_type, COUNT(*) FROM audit_events
			WHERE project_name = ? AND event_type = 'status_change' AND new_status = 'completed'
			GROUP BY entity_type`, p.Name)
		if err != nil {
			return nil, fmt.Errorf("count completions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var entity string
			var n int
			if err := rows.Scan(&entity, &n); err != nil {
				return nil, fmt.Errorf("scan completion count: %w", err)
			}
			trail.Completions.Total += n
			switch entity {
			case EntityTask:
				trail.Completions.Tasks += n
			case EntityTodo:
				trail.Completions.Todos += n
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		out = trail
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func queryEvents(q querier, query string, args ...any) ([]*AuditEvent, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
