package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
)

const auditColumns = `id, entity_type, entity_id, action, field_name, old_value, new_value, user_id, session_id, created_at`

func (r *repository) InsertAuditEntries(ctx context.Context, entries []audit.Entry) error {
	for _, e := range entries {
		_, err := r.db.ExecContext(ctx, `INSERT INTO audit_entries (entity_type, entity_id, action, field_name, old_value, new_value, user_id, session_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.EntityType, e.EntityID, string(e.Action), e.FieldName,
			jsonText(e.OldValue), jsonText(e.NewValue),
			nullable(e.UserID), nullable(e.SessionID), formatTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("store/sqlite: insert audit entry: %w", translate(err))
		}
	}
	return nil
}

func (r *repository) ListAuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_entries
WHERE entity_type = ? AND entity_id = ?
ORDER BY created_at ASC, id ASC`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: audit trail: %w", err)
	}
	return scanAuditEntries(rows)
}

func (r *repository) SearchAuditEntries(ctx context.Context, f audit.SearchFilters) ([]audit.Entry, int, error) {
	where, args := auditFilter(f)
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store/sqlite: count audit entries: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_entries`+where+`
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store/sqlite: search audit entries: %w", err)
	}
	entries, err := scanAuditEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func auditFilter(f audit.SearchFilters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, formatTime(f.To))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAuditEntries(rows *sql.Rows) ([]audit.Entry, error) {
	defer rows.Close()
	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e                  audit.Entry
			action, createdAt  string
			oldValue, newValue sql.NullString
			userID, sessionID  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &e.FieldName, &oldValue, &newValue, &userID, &sessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("store/sqlite: scan audit entry: %w", err)
		}
		at, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store/sqlite: audit entry %d created_at: %w", e.ID, err)
		}
		e.Action = audit.Action(action)
		e.OldValue = rawJSON(oldValue)
		e.NewValue = rawJSON(newValue)
		e.UserID = userID.String
		e.SessionID = sessionID.String
		e.CreatedAt = at
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: audit rows: %w", err)
	}
	return entries, nil
}

func jsonText(raw json.RawMessage) sql.NullString {
	if raw == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid {
		return nil
	}
	return json.RawMessage(ns.String)
}
