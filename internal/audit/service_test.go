package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

type stubRepo struct {
	entries    []Entry
	insertErr  error
	lastFilter SearchFilters
}

func (r *stubRepo) InsertAuditEntries(ctx context.Context, entries []Entry) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, e := range entries {
		e.ID = int64(len(r.entries) + 1)
		r.entries = append(r.entries, e)
	}
	return nil
}

func (r *stubRepo) ListAuditTrail(ctx context.Context, entityType, entityID string) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *stubRepo) SearchAuditEntries(ctx context.Context, filters SearchFilters) ([]Entry, int, error) {
	r.lastFilter = filters
	return nil, 0, nil
}

type countingObserver struct {
	counts map[string]int
}

func (o *countingObserver) AuditEntriesRecorded(action string, count int) {
	o.counts[action] += count
}

type income struct {
	Description string         `json:"description"`
	AmountCents int64          `json:"amount_cents"`
	Date        string         `json:"date"`
	Tags        []string       `json:"tags"`
	Meta        map[string]any `json:"meta,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`
}

func fixedLedger(opts ...Option) *Ledger {
	l := NewLedger(opts...)
	l.WithNow(func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) })
	return l
}

func TestRecordCreateWritesWholeRecordEntry(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()
	rec := income{Description: "Beratung", AmountCents: 119000, Date: "2025-01-15"}

	err := ledger.RecordCreate(context.Background(), repo, "income", "42", rec, Context{UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	e := repo.entries[0]
	assert.Equal(t, ActionCreate, e.Action)
	assert.Equal(t, WholeRecord, e.FieldName)
	assert.Nil(t, e.OldValue)
	assert.JSONEq(t, `{"description":"Beratung","amount_cents":119000,"date":"2025-01-15","tags":null}`, string(e.NewValue))
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), e.CreatedAt)
}

func TestRecordUpdateWritesOneEntryPerChangedField(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()
	before := map[string]any{"description": "Miete", "amount_cents": 50000, "date": "2025-01-03", "category": "rent"}
	after := map[string]any{"description": "Miete Januar", "amount_cents": 52000, "date": "2025-01-03", "category": "rent"}

	err := ledger.RecordUpdate(context.Background(), repo, "expense", "7", before, after, Context{})
	require.NoError(t, err)
	require.Len(t, repo.entries, 2)

	byField := map[string]Entry{}
	for _, e := range repo.entries {
		assert.Equal(t, ActionUpdate, e.Action)
		byField[e.FieldName] = e
	}
	require.Contains(t, byField, "amount_cents")
	require.Contains(t, byField, "description")
	assert.Equal(t, "50000", string(byField["amount_cents"].OldValue))
	assert.Equal(t, "52000", string(byField["amount_cents"].NewValue))
	assert.Equal(t, `"Miete"`, string(byField["description"].OldValue))
	assert.Equal(t, `"Miete Januar"`, string(byField["description"].NewValue))
}

func TestRecordUpdateNoChangesWritesNothing(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()
	rec := income{Description: "Honorar", AmountCents: 1000, Tags: []string{"a", "b"}, Meta: map[string]any{"x": 1, "y": []any{1, 2}}}

	err := ledger.RecordUpdate(context.Background(), repo, "income", "1", rec, rec, Context{})
	require.NoError(t, err)
	assert.Empty(t, repo.entries)
}

func TestRecordUpdateIgnoresKeyOrderAndFormatting(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()
	before := json.RawMessage(`{"a": 1.0, "rate": 1e2, "nested": {"x": [1, 2], "y": "z"}}`)
	after := json.RawMessage(`{"nested":{"y":"z","x":[1,2.00]},"rate":100,"a":1}`)

	require.NoError(t, ledger.RecordUpdate(context.Background(), repo, "income", "1", before, after, Context{}))
	assert.Empty(t, repo.entries)
}

func TestRecordUpdateDetectsNestedChange(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()
	before := json.RawMessage(`{"nested":{"x":[1,2]}}`)
	after := json.RawMessage(`{"nested":{"x":[1,3]}}`)

	require.NoError(t, ledger.RecordUpdate(context.Background(), repo, "income", "1", before, after, Context{}))
	require.Len(t, repo.entries, 1)
	assert.Equal(t, "nested", repo.entries[0].FieldName)
	assert.JSONEq(t, `{"x":[1,2]}`, string(repo.entries[0].OldValue))
	assert.JSONEq(t, `{"x":[1,3]}`, string(repo.entries[0].NewValue))
}

func TestRecordUpdateAddedAndRemovedFields(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()
	before := map[string]any{"a": "1", "gone": true}
	after := map[string]any{"a": "1", "added": "x"}

	require.NoError(t, ledger.RecordUpdate(context.Background(), repo, "income", "1", before, after, Context{}))
	require.Len(t, repo.entries, 2)
	assert.Equal(t, "added", repo.entries[0].FieldName)
	assert.Nil(t, repo.entries[0].OldValue)
	assert.Equal(t, `"x"`, string(repo.entries[0].NewValue))
	assert.Equal(t, "gone", repo.entries[1].FieldName)
	assert.Equal(t, "true", string(repo.entries[1].OldValue))
	assert.Nil(t, repo.entries[1].NewValue)
}

func TestRecordUpdateSkipsIgnoredFields(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger(WithIgnoredFields("updated_at"))
	before := income{Description: "a", UpdatedAt: "2025-01-01T00:00:00Z"}
	after := income{Description: "a", UpdatedAt: "2025-02-01T00:00:00Z"}

	require.NoError(t, ledger.RecordUpdate(context.Background(), repo, "income", "1", before, after, Context{}))
	assert.Empty(t, repo.entries)
}

func TestRecordDeleteAndSoftDeleteKeepSnapshot(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()
	rec := income{Description: "Storno", AmountCents: 500}

	require.NoError(t, ledger.RecordDelete(context.Background(), repo, "income", "9", rec, Context{}))
	require.NoError(t, ledger.RecordSoftDelete(context.Background(), repo, "income", "10", rec, Context{}))
	require.Len(t, repo.entries, 2)

	for i, action := range []Action{ActionDelete, ActionSoftDelete} {
		e := repo.entries[i]
		assert.Equal(t, action, e.Action)
		assert.Equal(t, WholeRecord, e.FieldName)
		assert.Nil(t, e.NewValue)
		assert.JSONEq(t, `{"description":"Storno","amount_cents":500,"date":"","tags":null}`, string(e.OldValue))
	}
}

func TestRecordRejectsMissingEntityOrRecord(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()

	err := ledger.RecordCreate(context.Background(), repo, " ", "1", income{}, Context{})
	assert.ErrorIs(t, err, ErrMissingEntity)
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = ledger.RecordCreate(context.Background(), repo, "income", "1", nil, Context{})
	assert.ErrorIs(t, err, ErrMissingRecord)

	err = ledger.RecordUpdate(context.Background(), repo, "income", "1", json.RawMessage(`[1]`), json.RawMessage(`[2]`), Context{})
	assert.ErrorIs(t, err, ErrNotAnObject)
	assert.Empty(t, repo.entries)
}

func TestRecordPropagatesStorageErrors(t *testing.T) {
	repo := &stubRepo{insertErr: ErrImmutableEntry}
	ledger := fixedLedger()

	err := ledger.RecordCreate(context.Background(), repo, "income", "1", income{}, Context{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrStorageIntegrity))
}

func TestObserverCountsEntries(t *testing.T) {
	repo := &stubRepo{}
	obs := &countingObserver{counts: map[string]int{}}
	ledger := fixedLedger(WithObserver(obs))

	require.NoError(t, ledger.RecordUpdate(context.Background(), repo, "income", "1",
		map[string]any{"a": 1, "b": 2}, map[string]any{"a": 2, "b": 3}, Context{}))
	assert.Equal(t, 2, obs.counts["update"])
}

func TestSearchNormalizesFilters(t *testing.T) {
	repo := &stubRepo{}
	ledger := fixedLedger()

	res, err := ledger.Search(context.Background(), repo, SearchFilters{EntityType: " income ", Limit: 10000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, "income", repo.lastFilter.EntityType)
	assert.Equal(t, maxSearchLimit, repo.lastFilter.Limit)
	assert.Equal(t, 0, repo.lastFilter.Offset)
	assert.NotNil(t, res.Entries)

	_, err = ledger.Search(context.Background(), repo, SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, defaultSearchLimit, repo.lastFilter.Limit)

	_, err = ledger.Search(context.Background(), repo, SearchFilters{Action: "rename"})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = ledger.Search(context.Background(), repo, SearchFilters{
		From: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrInvalidRange)
}
