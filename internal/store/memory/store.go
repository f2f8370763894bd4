// Package memory is an in-process compliance store for tests and demos.
// Transactions are serialized and commit by swapping in a modified copy of
// the state, so a failed transaction leaves nothing behind.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
)

type counterKey struct {
	documentType string
	year         int
}

type state struct {
	entries     []audit.Entry
	nextEntryID int64
	locks       []periodlock.Lock
	nextLockID  int64
	counters    map[counterKey]int64
	records     map[uuid.UUID]records.Record
}

func (s *state) clone() *state {
	out := &state{
		entries:     append([]audit.Entry(nil), s.entries...),
		nextEntryID: s.nextEntryID,
		locks:       append([]periodlock.Lock(nil), s.locks...),
		nextLockID:  s.nextLockID,
		counters:    make(map[counterKey]int64, len(s.counters)),
		records:     make(map[uuid.UUID]records.Record, len(s.records)),
	}
	for k, v := range s.counters {
		out.counters[k] = v
	}
	for k, v := range s.records {
		out.records[k] = v
	}
	return out
}

// Store holds all compliance tables in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: &state{
		counters: map[counterKey]int64{},
		records:  map[uuid.UUID]records.Record{},
	}}
}

// WithTx runs fn against a private copy of the state and publishes it only when
// fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx compliance.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

type tx struct {
	st *state
}

var _ compliance.Tx = (*tx)(nil)

func (t *tx) InsertAuditEntries(ctx context.Context, entries []audit.Entry) error {
	for _, e := range entries {
		t.st.nextEntryID++
		e.ID = t.st.nextEntryID
		t.st.entries = append(t.st.entries, e)
	}
	return nil
}

func (t *tx) ListAuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	out := make([]audit.Entry, 0)
	for _, e := range t.st.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) SearchAuditEntries(ctx context.Context, f audit.SearchFilters) ([]audit.Entry, int, error) {
	matches := make([]audit.Entry, 0)
	for _, e := range t.st.entries {
		switch {
		case f.EntityType != "" && e.EntityType != f.EntityType:
		case f.EntityID != "" && e.EntityID != f.EntityID:
		case f.Action != "" && e.Action != f.Action:
		case f.UserID != "" && e.UserID != f.UserID:
		case !f.From.IsZero() && e.CreatedAt.Before(f.From):
		case !f.To.IsZero() && e.CreatedAt.After(f.To):
		default:
			matches = append(matches, e)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	total := len(matches)
	if f.Offset >= total {
		return []audit.Entry{}, total, nil
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matches[f.Offset:end], total, nil
}

func (t *tx) InsertPeriodLock(ctx context.Context, lock periodlock.Lock) (periodlock.Lock, error) {
	for _, l := range t.st.locks {
		if l.PeriodKey == lock.PeriodKey && l.Active() {
			return periodlock.Lock{}, fmt.Errorf("%w: %s", periodlock.ErrAlreadyLocked, lock.PeriodKey)
		}
	}
	t.st.nextLockID++
	lock.ID = t.st.nextLockID
	lock.UnlockedAt = nil
	t.st.locks = append(t.st.locks, lock)
	return lock, nil
}

func (t *tx) FindActivePeriodLock(ctx context.Context, periodKey string) (periodlock.Lock, bool, error) {
	for _, l := range t.st.locks {
		if l.PeriodKey == periodKey && l.Active() {
			return l, true, nil
		}
	}
	return periodlock.Lock{}, false, nil
}

func (t *tx) MarkPeriodUnlocked(ctx context.Context, id int64, unlockedBy, reason string, at time.Time) (periodlock.Lock, error) {
	for i, l := range t.st.locks {
		if l.ID != id || !l.Active() {
			continue
		}
		unlockedAt := at
		l.UnlockedAt = &unlockedAt
		l.UnlockedBy = unlockedBy
		l.UnlockReason = reason
		t.st.locks[i] = l
		return l, nil
	}
	return periodlock.Lock{}, periodlock.ErrLockNotFound
}

func (t *tx) ListActivePeriodLocks(ctx context.Context, periodKeys []string) ([]periodlock.Lock, error) {
	want := make(map[string]struct{}, len(periodKeys))
	for _, k := range periodKeys {
		want[k] = struct{}{}
	}
	var out []periodlock.Lock
	for _, l := range t.st.locks {
		if _, ok := want[l.PeriodKey]; ok && l.Active() {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *tx) ListPeriodLocks(ctx context.Context, filter periodlock.ListFilter) ([]periodlock.Lock, error) {
	out := make([]periodlock.Lock, 0)
	for _, l := range t.st.locks {
		if filter.PeriodType != "" && l.PeriodType != filter.PeriodType {
			continue
		}
		if filter.ActiveOnly && !l.Active() {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LockedAt.Equal(out[j].LockedAt) {
			return out[i].LockedAt.After(out[j].LockedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tx) IncrementSequence(ctx context.Context, documentType string, year int) (int64, error) {
	key := counterKey{documentType: documentType, year: year}
	t.st.counters[key]++
	return t.st.counters[key], nil
}

func (t *tx) CurrentSequence(ctx context.Context, documentType string, year int) (int64, error) {
	return t.st.counters[counterKey{documentType: documentType, year: year}], nil
}

func (t *tx) InsertRecord(ctx context.Context, rec records.Record) error {
	if _, exists := t.st.records[rec.ID]; exists {
		return fmt.Errorf("memory: record %s already exists", rec.ID)
	}
	if rec.ReferenceNumber != "" && t.referenceTaken(rec.ReferenceNumber, rec.ID) {
		return records.ErrDuplicateReference
	}
	t.st.records[rec.ID] = rec
	return nil
}

func (t *tx) GetRecord(ctx context.Context, id uuid.UUID) (records.Record, error) {
	rec, ok := t.st.records[id]
	if !ok {
		return records.Record{}, records.ErrRecordNotFound
	}
	return rec, nil
}

func (t *tx) UpdateRecord(ctx context.Context, rec records.Record) error {
	current, ok := t.st.records[rec.ID]
	if !ok {
		return records.ErrRecordNotFound
	}
	current = current.Apply(records.Input{
		Date:         rec.Date,
		AmountCents:  rec.AmountCents,
		Currency:     rec.Currency,
		Description:  rec.Description,
		Counterparty: rec.Counterparty,
	})
	current.UpdatedAt = rec.UpdatedAt
	t.st.records[rec.ID] = current
	return nil
}

func (t *tx) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.st.records[id]; !ok {
		return records.ErrRecordNotFound
	}
	delete(t.st.records, id)
	return nil
}

func (t *tx) SoftDeleteRecord(ctx context.Context, id uuid.UUID, at time.Time) error {
	rec, ok := t.st.records[id]
	if !ok {
		return records.ErrRecordNotFound
	}
	deletedAt := at
	rec.DeletedAt = &deletedAt
	rec.UpdatedAt = at
	t.st.records[id] = rec
	return nil
}

func (t *tx) ListUnnumberedRecords(ctx context.Context, kind records.Kind) ([]records.Record, error) {
	var out []records.Record
	for _, rec := range t.st.records {
		if rec.Kind == kind && rec.ReferenceNumber == "" {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	return out, nil
}

func (t *tx) AssignReferenceNumber(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error) {
	rec, ok := t.st.records[id]
	if !ok || rec.ReferenceNumber != "" {
		return false, nil
	}
	if t.referenceTaken(ref, id) {
		return false, records.ErrDuplicateReference
	}
	rec.ReferenceNumber = ref
	rec.UpdatedAt = at
	t.st.records[id] = rec
	return true, nil
}

func (t *tx) ListReferenceNumbers(ctx context.Context, prefix string) ([]string, error) {
	out := make([]string, 0)
	for _, rec := range t.st.records {
		if rec.ReferenceNumber != "" && strings.HasPrefix(rec.ReferenceNumber, prefix) {
			out = append(out, rec.ReferenceNumber)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *tx) referenceTaken(ref string, except uuid.UUID) bool {
	for id, rec := range t.st.records {
		if id != except && rec.ReferenceNumber == ref {
			return true
		}
	}
	return false
}
