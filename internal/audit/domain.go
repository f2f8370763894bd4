// Package audit implements the append-only audit ledger for tracked financial
// entities. Every mutation yields one or more immutable entries.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// Action enumerates tracked mutation kinds.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionSoftDelete Action = "soft_delete"
	ActionLock       Action = "lock"
	ActionUnlock     Action = "unlock"
)

// WholeRecord is the field name used by entries that describe the entire record.
const WholeRecord = "*"

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionSoftDelete, ActionLock, ActionUnlock:
		return true
	default:
		return false
	}
}

// Context carries the optional request identity stored on every entry.
type Context struct {
	UserID    string
	SessionID string
}

// ContextFromActor converts the request actor into an audit context.
func ContextFromActor(actor shared.Actor) Context {
	return Context{UserID: actor.UserID, SessionID: actor.SessionID}
}

// Entry is one immutable audit row.
type Entry struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     Action          `json:"action"`
	FieldName  string          `json:"field_name"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
	UserID     string          `json:"user_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

// SearchFilters narrows a ledger search. Zero values disable a filter; all
// provided filters are combined with AND.
type SearchFilters struct {
	EntityType string
	EntityID   string
	Action     Action
	UserID     string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

func (f SearchFilters) normalize() (SearchFilters, error) {
	f.EntityType = strings.TrimSpace(f.EntityType)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.UserID = strings.TrimSpace(f.UserID)
	if f.Action != "" && !f.Action.Valid() {
		return SearchFilters{}, fmt.Errorf("%w: %q", ErrInvalidAction, f.Action)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return SearchFilters{}, ErrInvalidRange
	}
	if f.Limit <= 0 {
		f.Limit = defaultSearchLimit
	}
	if f.Limit > maxSearchLimit {
		f.Limit = maxSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}

// SearchResult is one page of entries plus the total number of matches.
type SearchResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository persists audit entries. Implementations must refuse any update or
// delete of stored entries, and the interface offers neither.
type Repository interface {
	InsertAuditEntries(ctx context.Context, entries []Entry) error
	ListAuditTrail(ctx context.Context, entityType, entityID string) ([]Entry, error)
	SearchAuditEntries(ctx context.Context, filters SearchFilters) ([]Entry, int, error)
}

var (
	// ErrImmutableEntry is returned when storage rejects a rewrite of an entry.
	ErrImmutableEntry = fmt.Errorf("audit: entries are append-only: %w", shared.ErrStorageIntegrity)
	// ErrInvalidAction indicates an unknown action filter.
	ErrInvalidAction = fmt.Errorf("audit: invalid action: %w", shared.ErrValidation)
	// ErrInvalidRange indicates from is after to.
	ErrInvalidRange = fmt.Errorf("audit: from must not be after to: %w", shared.ErrValidation)
	// ErrMissingEntity indicates an empty entity type or id.
	ErrMissingEntity = fmt.Errorf("audit: entity type and id required: %w", shared.ErrValidation)
	// ErrMissingRecord indicates a nil snapshot where one is required.
	ErrMissingRecord = fmt.Errorf("audit: record snapshot required: %w", shared.ErrValidation)
	// ErrNotAnObject indicates a record that does not serialize to a JSON object.
	ErrNotAnObject = fmt.Errorf("audit: record must serialize to a JSON object: %w", shared.ErrValidation)
)
