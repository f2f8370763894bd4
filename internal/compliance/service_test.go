package compliance_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
	"github.com/odyssey-erp/gobd-ledger/internal/platform/cache"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
	"github.com/odyssey-erp/gobd-ledger/internal/store/memory"
)

var actor = audit.Context{UserID: "user-1", SessionID: "session-1"}

type stepClock struct {
	ticks atomic.Int64
	base  time.Time
}

func (c *stepClock) now() time.Time {
	return c.base.Add(time.Duration(c.ticks.Add(1)) * time.Second)
}

func newService(t *testing.T, opts ...compliance.Option) (*compliance.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := compliance.NewService(store, opts...)
	clock := &stepClock{base: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc.WithNow(clock.now)
	return svc, store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func incomeInput(d time.Time, cents int64, description string) records.Input {
	return records.Input{Kind: records.KindIncome, Date: d, AmountCents: cents, Currency: "eur", Description: description}
}

func TestNextSequenceNumberSequentialAndIndependent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, want := range []string{"EI-2025-001", "EI-2025-002", "EI-2025-003"} {
		got, err := svc.GetNextSequenceNumber(ctx, "EI", 2025)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := svc.GetNextSequenceNumber(ctx, "EI", 2026)
	require.NoError(t, err)
	assert.Equal(t, "EI-2026-001", got)
	got, err = svc.GetNextSequenceNumber(ctx, "EA", 2025)
	require.NoError(t, err)
	assert.Equal(t, "EA-2025-001", got)
}

func TestNextSequenceNumberConcurrentIsGapless(t *testing.T) {
	svc, _ := newService(t)
	const callers = 40

	refs := make([]string, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			ref, err := svc.GetNextSequenceNumber(context.Background(), "EI", 2025)
			refs[i] = ref
			return err
		})
	}
	require.NoError(t, g.Wait())

	report, err := svc.SequenceGaps(context.Background(), "EI", 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(callers), report.LastIssued)

	seen := map[string]bool{}
	for _, ref := range refs {
		assert.False(t, seen[ref], "duplicate %s", ref)
		seen[ref] = true
	}
	assert.Len(t, seen, callers)
}

func TestConcurrentLockOfSameKeyHasOneWinner(t *testing.T) {
	svc, _ := newService(t)
	const callers = 8

	var ok, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := svc.LockPeriod(context.Background(), periodlock.LockInput{PeriodType: periodlock.PeriodMonth, PeriodKey: "2025-04", Reason: "filed"}, actor)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, periodlock.ErrAlreadyLocked):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(callers-1), conflicts.Load())

	locks, err := svc.GetPeriodLocks(context.Background(), periodlock.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, locks, 1)
}

func TestRunRollsBackEverything(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	boom := errors.New("storage write failed")

	err := svc.Run(ctx, func(ctx context.Context, sc *compliance.Scope) error {
		if err := sc.EnforcePeriodLock(ctx, day(2025, 5, 2), "create income"); err != nil {
			return err
		}
		ref, err := sc.NextSequenceNumber(ctx, "EI", 2025)
		if err != nil {
			return err
		}
		if err := sc.RecordCreate(ctx, "income", "draft", map[string]string{"reference_number": ref}, actor); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	trail, err := svc.GetAuditTrail(ctx, "income", "draft")
	require.NoError(t, err)
	assert.Empty(t, trail)

	ref, err := svc.GetNextSequenceNumber(ctx, "EI", 2025)
	require.NoError(t, err)
	assert.Equal(t, "EI-2025-001", ref)
}

func TestCreateRecordNumbersAndAudits(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.CreateRecord(ctx, incomeInput(day(2025, 3, 4), 119000, "Beratung"), actor)
	require.NoError(t, err)
	assert.Equal(t, "EI-2025-001", first.ReferenceNumber)
	assert.Equal(t, "EUR", first.Currency)

	expense, err := svc.CreateRecord(ctx, records.Input{Kind: records.KindExpense, Date: day(2025, 3, 5), AmountCents: 4999}, actor)
	require.NoError(t, err)
	assert.Equal(t, "EA-2025-001", expense.ReferenceNumber)

	second, err := svc.CreateRecord(ctx, incomeInput(day(2025, 3, 6), 5000, "Workshop"), actor)
	require.NoError(t, err)
	assert.Equal(t, "EI-2025-002", second.ReferenceNumber)

	trail, err := svc.GetAuditTrail(ctx, "income", first.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, audit.ActionCreate, trail[0].Action)
	assert.Equal(t, audit.WholeRecord, trail[0].FieldName)
	assert.Nil(t, trail[0].OldValue)
	assert.Contains(t, string(trail[0].NewValue), `"reference_number":"EI-2025-001"`)
	assert.Equal(t, "user-1", trail[0].UserID)
	assert.Equal(t, "session-1", trail[0].SessionID)

	_, err = svc.CreateRecord(ctx, records.Input{Kind: "invoice", Date: day(2025, 3, 6)}, actor)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRecordInLockedPeriodConsumesNothing(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.LockPeriod(ctx, periodlock.LockInput{PeriodType: periodlock.PeriodQuarter, PeriodKey: "2025-Q1", Reason: "USt-VA filed"}, actor)
	require.NoError(t, err)

	_, err = svc.CreateRecord(ctx, incomeInput(day(2025, 2, 1), 100, "late"), actor)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
	assert.Contains(t, err.Error(), "2025-Q1")

	rec, err := svc.CreateRecord(ctx, incomeInput(day(2025, 4, 1), 100, "on time"), actor)
	require.NoError(t, err)
	assert.Equal(t, "EI-2025-001", rec.ReferenceNumber)

	result, err := svc.SearchAuditLog(ctx, audit.SearchFilters{EntityType: "income"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestUpdateRecordAuditsChangedFieldsOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, records.Input{
		Kind: records.KindIncome, Date: day(2025, 5, 10), AmountCents: 10000, Currency: "EUR",
		Description: "Miete", Counterparty: "ACME",
	}, actor)
	require.NoError(t, err)

	updated, err := svc.UpdateRecord(ctx, rec.ID, records.Input{
		Date: day(2025, 5, 10), AmountCents: 12000, Currency: "EUR",
		Description: "Miete Mai", Counterparty: "ACME",
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, rec.ReferenceNumber, updated.ReferenceNumber)
	assert.Equal(t, records.KindIncome, updated.Kind)

	trail, err := svc.GetAuditTrail(ctx, "income", rec.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 3)
	changed := map[string]audit.Entry{}
	for _, e := range trail[1:] {
		assert.Equal(t, audit.ActionUpdate, e.Action)
		changed[e.FieldName] = e
	}
	require.Contains(t, changed, "amount_cents")
	require.Contains(t, changed, "description")
	assert.Equal(t, "10000", string(changed["amount_cents"].OldValue))
	assert.Equal(t, "12000", string(changed["amount_cents"].NewValue))

	_, err = svc.UpdateRecord(ctx, rec.ID, records.Input{
		Date: day(2025, 5, 10), AmountCents: 12000, Currency: "EUR",
		Description: "Miete Mai", Counterparty: "ACME",
	}, actor)
	require.NoError(t, err)
	trail, err = svc.GetAuditTrail(ctx, "income", rec.ID.String())
	require.NoError(t, err)
	assert.Len(t, trail, 3)
}

func TestUpdateRecordClearingCounterpartyAuditsEmptyString(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	in := records.Input{
		Kind: records.KindIncome, Date: day(2025, 5, 10), AmountCents: 10000, Currency: "EUR",
		Description: "Miete", Counterparty: "ACME",
	}
	rec, err := svc.CreateRecord(ctx, in, actor)
	require.NoError(t, err)

	in.Counterparty = ""
	_, err = svc.UpdateRecord(ctx, rec.ID, in, actor)
	require.NoError(t, err)

	trail, err := svc.GetAuditTrail(ctx, "income", rec.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "counterparty", trail[1].FieldName)
	assert.Equal(t, `"ACME"`, string(trail[1].OldValue))
	assert.Equal(t, `""`, string(trail[1].NewValue))
}

func TestUpdateRecordChecksOldAndNewDate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, incomeInput(day(2025, 2, 10), 100, "x"), actor)
	require.NoError(t, err)
	_, err = svc.LockPeriod(ctx, periodlock.LockInput{PeriodType: periodlock.PeriodMonth, PeriodKey: "2025-01", Reason: "filed"}, actor)
	require.NoError(t, err)

	_, err = svc.UpdateRecord(ctx, rec.ID, incomeInput(day(2025, 1, 31), 100, "x"), actor)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	_, err = svc.LockPeriod(ctx, periodlock.LockInput{PeriodType: periodlock.PeriodMonth, PeriodKey: "2025-02", Reason: "filed"}, actor)
	require.NoError(t, err)
	_, err = svc.UpdateRecord(ctx, rec.ID, incomeInput(day(2025, 3, 1), 100, "x"), actor)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	got, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 2, 10), got.Date)
}

func TestDeleteRecordLeavesGap(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.CreateRecord(ctx, incomeInput(day(2025, 7, 1), 100, "a"), actor)
	require.NoError(t, err)
	b, err := svc.CreateRecord(ctx, incomeInput(day(2025, 7, 2), 100, "b"), actor)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRecord(ctx, a.ID, actor))
	_, err = svc.GetRecord(ctx, a.ID)
	assert.ErrorIs(t, err, records.ErrRecordNotFound)

	c, err := svc.CreateRecord(ctx, incomeInput(day(2025, 7, 3), 100, "c"), actor)
	require.NoError(t, err)
	assert.Equal(t, "EI-2025-003", c.ReferenceNumber)
	assert.Equal(t, "EI-2025-002", b.ReferenceNumber)

	report, err := svc.SequenceGaps(ctx, "EI", 2025)
	require.NoError(t, err)
	assert.Equal(t, []string{"EI-2025-001"}, report.Missing)

	trail, err := svc.GetAuditTrail(ctx, "income", a.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, audit.ActionDelete, trail[1].Action)
	assert.Nil(t, trail[1].NewValue)
	assert.Contains(t, string(trail[1].OldValue), `"description":"a"`)

	assert.ErrorIs(t, svc.DeleteRecord(ctx, uuid.New(), actor), shared.ErrNotFound)
}

func TestSoftDeleteRecordKeepsRowAndNumber(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.CreateRecord(ctx, incomeInput(day(2025, 8, 1), 100, "soft"), actor)
	require.NoError(t, err)
	require.NoError(t, svc.SoftDeleteRecord(ctx, rec.ID, actor))

	got, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Equal(t, rec.ReferenceNumber, got.ReferenceNumber)

	assert.ErrorIs(t, svc.SoftDeleteRecord(ctx, rec.ID, actor), records.ErrRecordDeleted)
	_, err = svc.UpdateRecord(ctx, rec.ID, incomeInput(day(2025, 8, 2), 1, "x"), actor)
	assert.ErrorIs(t, err, records.ErrRecordDeleted)

	trail, err := svc.GetAuditTrail(ctx, "income", rec.ID.String())
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, audit.ActionSoftDelete, trail[1].Action)
	assert.Equal(t, audit.WholeRecord, trail[1].FieldName)
	assert.Nil(t, trail[1].NewValue)

	report, err := svc.SequenceGaps(ctx, "EI", 2025)
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
}

func TestSearchAuditLogFilters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateRecord(ctx, incomeInput(day(2025, 9, 1+i), 100, "i"), actor)
		require.NoError(t, err)
	}
	_, err := svc.CreateRecord(ctx, records.Input{Kind: records.KindExpense, Date: day(2025, 9, 1)}, audit.Context{UserID: "user-2"})
	require.NoError(t, err)

	res, err := svc.SearchAuditLog(ctx, audit.SearchFilters{EntityType: "income", Action: audit.ActionCreate, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Len(t, res.Entries, 2)
	assert.True(t, !res.Entries[0].CreatedAt.Before(res.Entries[1].CreatedAt))

	res, err = svc.SearchAuditLog(ctx, audit.SearchFilters{EntityType: "income", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)

	res, err = svc.SearchAuditLog(ctx, audit.SearchFilters{UserID: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "expense", res.Entries[0].EntityType)

	res, err = svc.SearchAuditLog(ctx, audit.SearchFilters{Action: audit.ActionDelete})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.NotNil(t, res.Entries)
}

func seedUnnumbered(t *testing.T, store *memory.Store, kind records.Kind, dates ...time.Time) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, len(dates))
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx compliance.Tx) error {
		for i, d := range dates {
			ids[i] = uuid.New()
			rec := records.Record{
				ID: ids[i], Kind: kind, Date: d, AmountCents: 100, Currency: "EUR",
				CreatedAt: created.Add(time.Duration(i) * time.Minute), UpdatedAt: created,
			}
			if err := tx.InsertRecord(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	}))
	return ids
}

func TestBackfillAssignsInDateOrderAndContinuesCounter(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	existing, err := svc.GetNextSequenceNumber(ctx, "EI", 2025)
	require.NoError(t, err)
	require.Equal(t, "EI-2025-001", existing)

	income := seedUnnumbered(t, store, records.KindIncome, day(2025, 3, 1), day(2025, 1, 15), day(2025, 2, 1), day(2025, 1, 15))
	expense := seedUnnumbered(t, store, records.KindExpense, day(2024, 12, 31), day(2025, 1, 2))

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx compliance.Tx) error {
		return tx.SoftDeleteRecord(ctx, income[0], time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	}))

	result, err := svc.BackfillReferenceNumbers(ctx, audit.Context{UserID: "system"})
	require.NoError(t, err)
	assert.Equal(t, compliance.BackfillResult{Income: 4, Expenses: 2}, result)

	want := map[uuid.UUID]string{
		income[1]:  "EI-2025-002",
		income[3]:  "EI-2025-003",
		income[2]:  "EI-2025-004",
		income[0]:  "EI-2025-005",
		expense[0]: "EA-2024-001",
		expense[1]: "EA-2025-001",
	}
	for id, ref := range want {
		rec, err := svc.GetRecord(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, ref, rec.ReferenceNumber, id.String())
	}

	next, err := svc.GetNextSequenceNumber(ctx, "EI", 2025)
	require.NoError(t, err)
	assert.Equal(t, "EI-2025-006", next)

	trail, err := svc.GetAuditTrail(ctx, "income", income[1].String())
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, audit.ActionUpdate, trail[0].Action)
	assert.Equal(t, "reference_number", trail[0].FieldName)
	assert.Nil(t, trail[0].OldValue)
	assert.Equal(t, `"EI-2025-002"`, string(trail[0].NewValue))

	again, err := svc.BackfillReferenceNumbers(ctx, audit.Context{UserID: "system"})
	require.NoError(t, err)
	assert.Equal(t, compliance.BackfillResult{}, again)
}

func TestBackfillRefusesWhileAnotherRunHoldsLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	newLock := func() compliance.Locker {
		return cache.NewMutex(client, shared.ReferenceBackfillLockKey(), time.Minute)
	}
	svc, store := newService(t, compliance.WithBackfillLock(newLock))
	seedUnnumbered(t, store, records.KindIncome, day(2025, 1, 1))

	held := newLock()
	require.NoError(t, held.Acquire(context.Background()))

	_, err := svc.BackfillReferenceNumbers(context.Background(), actor)
	require.ErrorIs(t, err, compliance.ErrBackfillRunning)
	require.ErrorIs(t, err, shared.ErrConflict)

	require.NoError(t, held.Release(context.Background()))
	result, err := svc.BackfillReferenceNumbers(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Income)
	assert.False(t, mr.Exists(shared.ReferenceBackfillLockKey()))
}

type heldLocker struct{ released bool }

func (l *heldLocker) Acquire(context.Context) error {
	return fmt.Errorf("remote: %w", shared.ErrLockHeld)
}
func (l *heldLocker) Release(context.Context) error { l.released = true; return nil }

func TestBackfillMapsAnyHeldLockToRunning(t *testing.T) {
	locker := &heldLocker{}
	svc, store := newService(t, compliance.WithBackfillLock(func() compliance.Locker { return locker }))
	seedUnnumbered(t, store, records.KindIncome, day(2025, 1, 1))

	_, err := svc.BackfillReferenceNumbers(context.Background(), actor)
	require.ErrorIs(t, err, compliance.ErrBackfillRunning)
	assert.False(t, locker.released)
}

type recordingObserver struct {
	audits    atomic.Int64
	rejected  atomic.Int64
	sequences atomic.Int64
}

func (o *recordingObserver) AuditEntriesRecorded(action string, count int) {
	o.audits.Add(int64(count))
}
func (o *recordingObserver) PeriodLockRejected(periodType string)     { o.rejected.Add(1) }
func (o *recordingObserver) SequenceNumberIssued(documentType string) { o.sequences.Add(1) }

func TestObserverSeesComplianceEvents(t *testing.T) {
	obs := &recordingObserver{}
	svc, _ := newService(t, compliance.WithObserver(obs))
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, incomeInput(day(2025, 1, 5), 100, "a"), actor)
	require.NoError(t, err)
	_, err = svc.LockPeriod(ctx, periodlock.LockInput{PeriodKey: "2025", Reason: "closed"}, actor)
	require.NoError(t, err)
	_, err = svc.CreateRecord(ctx, incomeInput(day(2025, 1, 6), 100, "b"), actor)
	require.Error(t, err)

	assert.Equal(t, int64(2), obs.audits.Load())
	assert.Equal(t, int64(1), obs.rejected.Load())
	assert.Equal(t, int64(1), obs.sequences.Load())
}
