package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
)

const lockColumns = `id, period_type, period_key, reason, locked_by, locked_at, unlocked_by, unlocked_at, unlock_reason`

func (r *repository) InsertPeriodLock(ctx context.Context, lock periodlock.Lock) (periodlock.Lock, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO period_locks (period_type, period_key, reason, locked_by, locked_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+lockColumns,
		string(lock.PeriodType), lock.PeriodKey, lock.Reason, nullable(lock.LockedBy), lock.LockedAt)
	out, err := scanLock(row)
	if err != nil {
		return periodlock.Lock{}, translate(err)
	}
	return out, nil
}

func (r *repository) FindActivePeriodLock(ctx context.Context, periodKey string) (periodlock.Lock, bool, error) {
	row := r.db.QueryRow(ctx, `SELECT `+lockColumns+` FROM period_locks
WHERE period_key = $1 AND unlocked_at IS NULL`, periodKey)
	lock, err := scanLock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return periodlock.Lock{}, false, nil
	}
	if err != nil {
		return periodlock.Lock{}, false, fmt.Errorf("store/postgres: find active lock: %w", err)
	}
	return lock, true, nil
}

func (r *repository) MarkPeriodUnlocked(ctx context.Context, id int64, unlockedBy, reason string, at time.Time) (periodlock.Lock, error) {
	row := r.db.QueryRow(ctx, `UPDATE period_locks
SET unlocked_at = $2, unlocked_by = $3, unlock_reason = $4
WHERE id = $1 AND unlocked_at IS NULL
RETURNING `+lockColumns, id, at, nullable(unlockedBy), reason)
	lock, err := scanLock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return periodlock.Lock{}, periodlock.ErrLockNotFound
	}
	if err != nil {
		return periodlock.Lock{}, fmt.Errorf("store/postgres: unlock period: %w", err)
	}
	return lock, nil
}

func (r *repository) ListActivePeriodLocks(ctx context.Context, periodKeys []string) ([]periodlock.Lock, error) {
	rows, err := r.db.Query(ctx, `SELECT `+lockColumns+` FROM period_locks
WHERE period_key = ANY($1) AND unlocked_at IS NULL
ORDER BY locked_at ASC, id ASC`, periodKeys)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list active locks: %w", err)
	}
	return collectLocks(rows)
}

func (r *repository) ListPeriodLocks(ctx context.Context, filter periodlock.ListFilter) ([]periodlock.Lock, error) {
	var periodType *string
	if filter.PeriodType != "" {
		s := string(filter.PeriodType)
		periodType = &s
	}
	rows, err := r.db.Query(ctx, `SELECT `+lockColumns+` FROM period_locks
WHERE ($1::text IS NULL OR period_type = $1)
  AND (NOT $2 OR unlocked_at IS NULL)
ORDER BY locked_at DESC, id DESC`, periodType, filter.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list locks: %w", err)
	}
	return collectLocks(rows)
}

func collectLocks(rows pgx.Rows) ([]periodlock.Lock, error) {
	defer rows.Close()
	locks := make([]periodlock.Lock, 0)
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("store/postgres: scan lock: %w", err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/postgres: lock rows: %w", err)
	}
	return locks, nil
}

func scanLock(row pgx.Row) (periodlock.Lock, error) {
	var (
		lock                               periodlock.Lock
		periodType                         string
		lockedBy, unlockedBy, unlockReason *string
		unlockedAt                         *time.Time
	)
	if err := row.Scan(&lock.ID, &periodType, &lock.PeriodKey, &lock.Reason, &lockedBy, &lock.LockedAt, &unlockedBy, &unlockedAt, &unlockReason); err != nil {
		return periodlock.Lock{}, err
	}
	lock.PeriodType = periodlock.PeriodType(periodType)
	lock.LockedBy = deref(lockedBy)
	lock.LockedAt = lock.LockedAt.UTC()
	lock.UnlockedBy = deref(unlockedBy)
	lock.UnlockReason = deref(unlockReason)
	if unlockedAt != nil {
		at := unlockedAt.UTC()
		lock.UnlockedAt = &at
	}
	return lock, nil
}
