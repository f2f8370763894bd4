package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
)

const auditColumns = `id, entity_type, entity_id, action, field_name, old_value, new_value, user_id, session_id, created_at`

func (r *repository) InsertAuditEntries(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO audit_entries (entity_type, entity_id, action, field_name, old_value, new_value, user_id, session_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.EntityType, e.EntityID, string(e.Action), e.FieldName,
			jsonParam(e.OldValue), jsonParam(e.NewValue),
			nullable(e.UserID), nullable(e.SessionID), e.CreatedAt)
	}
	br := r.db.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("store/postgres: insert audit entry: %w", translate(err))
		}
	}
	return translate(br.Close())
}

func (r *repository) ListAuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+auditColumns+` FROM audit_entries
WHERE entity_type = $1 AND entity_id = $2
ORDER BY created_at ASC, id ASC`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: audit trail: %w", err)
	}
	return scanAuditEntries(rows)
}

func (r *repository) SearchAuditEntries(ctx context.Context, f audit.SearchFilters) ([]audit.Entry, int, error) {
	where, args := auditFilter(f)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store/postgres: count audit entries: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM audit_entries%s
ORDER BY created_at DESC, id DESC
LIMIT $%d OFFSET $%d`, auditColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store/postgres: search audit entries: %w", err)
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
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanAuditEntries(rows pgx.Rows) ([]audit.Entry, error) {
	defer rows.Close()
	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e                 audit.Entry
			action            string
			oldValue          []byte
			newValue          []byte
			userID, sessionID *string
			createdAt         time.Time
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &e.FieldName, &oldValue, &newValue, &userID, &sessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("store/postgres: scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		e.OldValue = rawJSON(oldValue)
		e.NewValue = rawJSON(newValue)
		e.UserID = deref(userID)
		e.SessionID = deref(sessionID)
		e.CreatedAt = createdAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/postgres: audit rows: %w", err)
	}
	return entries, nil
}

// jsonParam passes snapshots as text so JSONB receives them unchanged and a
// nil snapshot becomes SQL NULL.
func jsonParam(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	s := string(raw)
	return &s
}

func rawJSON(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	return json.RawMessage(b)
}
