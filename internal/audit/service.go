package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Observer receives counts of written entries, typically for metrics.
type Observer interface {
	AuditEntriesRecorded(action string, count int)
}

// Ledger writes and reads audit entries through an explicit repository handle,
// so that entries share the caller's transaction.
type Ledger struct {
	ignored  map[string]struct{}
	observer Observer
	now      func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithIgnoredFields excludes bookkeeping fields such as updated_at from update diffs.
func WithIgnoredFields(fields ...string) Option {
	return func(l *Ledger) {
		for _, f := range fields {
			l.ignored[f] = struct{}{}
		}
	}
}

// WithObserver attaches an entry observer.
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		l.observer = o
	}
}

// NewLedger constructs a Ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{ignored: map[string]struct{}{}, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithNow overrides the clock for deterministic tests.
func (l *Ledger) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// RecordCreate writes one whole-record entry with the new snapshot.
func (l *Ledger) RecordCreate(ctx context.Context, repo Repository, entityType, entityID string, record any, actx Context) error {
	snapshot, err := Snapshot(record)
	if err != nil {
		return err
	}
	return l.write(ctx, repo, entityType, entityID, ActionCreate, actx, wholeRecord(nil, snapshot))
}

// RecordUpdate writes one entry per changed field. Nothing is written when the
// records are equal.
func (l *Ledger) RecordUpdate(ctx context.Context, repo Repository, entityType, entityID string, oldRecord, newRecord any, actx Context) error {
	if _, _, err := normalizeEntity(entityType, entityID); err != nil {
		return err
	}
	changes, err := Diff(oldRecord, newRecord, l.ignored)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	return l.write(ctx, repo, entityType, entityID, ActionUpdate, actx, changes)
}

// RecordDelete writes the full snapshot of a physically removed record.
func (l *Ledger) RecordDelete(ctx context.Context, repo Repository, entityType, entityID string, record any, actx Context) error {
	return l.recordRemoval(ctx, repo, entityType, entityID, ActionDelete, record, actx)
}

// RecordSoftDelete writes the full snapshot of a logically removed record.
func (l *Ledger) RecordSoftDelete(ctx context.Context, repo Repository, entityType, entityID string, record any, actx Context) error {
	return l.recordRemoval(ctx, repo, entityType, entityID, ActionSoftDelete, record, actx)
}

// RecordLock writes a lock entry for an administrative resource.
func (l *Ledger) RecordLock(ctx context.Context, repo Repository, entityType, entityID string, record any, actx Context) error {
	snapshot, err := Snapshot(record)
	if err != nil {
		return err
	}
	return l.write(ctx, repo, entityType, entityID, ActionLock, actx, wholeRecord(nil, snapshot))
}

// RecordUnlock writes an unlock entry carrying the state before and after.
func (l *Ledger) RecordUnlock(ctx context.Context, repo Repository, entityType, entityID string, before, after any, actx Context) error {
	oldSnap, err := Snapshot(before)
	if err != nil {
		return err
	}
	newSnap, err := Snapshot(after)
	if err != nil {
		return err
	}
	return l.write(ctx, repo, entityType, entityID, ActionUnlock, actx, wholeRecord(oldSnap, newSnap))
}

// Trail returns every entry of one entity in chronological order.
func (l *Ledger) Trail(ctx context.Context, repo Repository, entityType, entityID string) ([]Entry, error) {
	entityType, entityID, err := normalizeEntity(entityType, entityID)
	if err != nil {
		return nil, err
	}
	return repo.ListAuditTrail(ctx, entityType, entityID)
}

// Search returns a page of matching entries, newest first, with the total count.
func (l *Ledger) Search(ctx context.Context, repo Repository, filters SearchFilters) (SearchResult, error) {
	f, err := filters.normalize()
	if err != nil {
		return SearchResult{}, err
	}
	entries, total, err := repo.SearchAuditEntries(ctx, f)
	if err != nil {
		return SearchResult{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return SearchResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (l *Ledger) recordRemoval(ctx context.Context, repo Repository, entityType, entityID string, action Action, record any, actx Context) error {
	snapshot, err := Snapshot(record)
	if err != nil {
		return err
	}
	return l.write(ctx, repo, entityType, entityID, action, actx, wholeRecord(snapshot, nil))
}

func (l *Ledger) write(ctx context.Context, repo Repository, entityType, entityID string, action Action, actx Context, changes []FieldChange) error {
	if repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	entityType, entityID, err := normalizeEntity(entityType, entityID)
	if err != nil {
		return err
	}
	at := l.now().UTC()
	entries := make([]Entry, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, Entry{
			EntityType: entityType,
			EntityID:   entityID,
			Action:     action,
			FieldName:  c.Field,
			OldValue:   c.Old,
			NewValue:   c.New,
			UserID:     strings.TrimSpace(actx.UserID),
			SessionID:  strings.TrimSpace(actx.SessionID),
			CreatedAt:  at,
		})
	}
	if err := repo.InsertAuditEntries(ctx, entries); err != nil {
		return err
	}
	if l.observer != nil {
		l.observer.AuditEntriesRecorded(string(action), len(entries))
	}
	return nil
}

func wholeRecord(oldSnap, newSnap json.RawMessage) []FieldChange {
	return []FieldChange{{Field: WholeRecord, Old: oldSnap, New: newSnap}}
}

func normalizeEntity(entityType, entityID string) (string, string, error) {
	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	if entityType == "" || entityID == "" {
		return "", "", ErrMissingEntity
	}
	return entityType, entityID, nil
}
