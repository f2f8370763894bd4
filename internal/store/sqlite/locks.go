package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
)

const lockColumns = `id, period_type, period_key, reason, locked_by, locked_at, unlocked_by, unlocked_at, unlock_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *repository) InsertPeriodLock(ctx context.Context, lock periodlock.Lock) (periodlock.Lock, error) {
	row := r.db.QueryRowContext(ctx, `INSERT INTO period_locks (period_type, period_key, reason, locked_by, locked_at)
VALUES (?, ?, ?, ?, ?)
RETURNING `+lockColumns,
		string(lock.PeriodType), lock.PeriodKey, lock.Reason, nullable(lock.LockedBy), formatTime(lock.LockedAt))
	out, err := scanLock(row)
	if err != nil {
		return periodlock.Lock{}, translate(err)
	}
	return out, nil
}

func (r *repository) FindActivePeriodLock(ctx context.Context, periodKey string) (periodlock.Lock, bool, error) {
	lock, err := scanLock(r.db.QueryRowContext(ctx, `SELECT `+lockColumns+` FROM period_locks
WHERE period_key = ? AND unlocked_at IS NULL`, periodKey))
	if errors.Is(err, sql.ErrNoRows) {
		return periodlock.Lock{}, false, nil
	}
	if err != nil {
		return periodlock.Lock{}, false, fmt.Errorf("store/sqlite: find active lock: %w", err)
	}
	return lock, true, nil
}

func (r *repository) MarkPeriodUnlocked(ctx context.Context, id int64, unlockedBy, reason string, at time.Time) (periodlock.Lock, error) {
	lock, err := scanLock(r.db.QueryRowContext(ctx, `UPDATE period_locks
SET unlocked_at = ?, unlocked_by = ?, unlock_reason = ?
WHERE id = ? AND unlocked_at IS NULL
RETURNING `+lockColumns, formatTime(at), nullable(unlockedBy), reason, id))
	if errors.Is(err, sql.ErrNoRows) {
		return periodlock.Lock{}, periodlock.ErrLockNotFound
	}
	if err != nil {
		return periodlock.Lock{}, fmt.Errorf("store/sqlite: unlock period: %w", err)
	}
	return lock, nil
}

func (r *repository) ListActivePeriodLocks(ctx context.Context, periodKeys []string) ([]periodlock.Lock, error) {
	if len(periodKeys) == 0 {
		return []periodlock.Lock{}, nil
	}
	args := make([]any, len(periodKeys))
	for i, k := range periodKeys {
		args[i] = k
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+lockColumns+` FROM period_locks
WHERE period_key IN (`+placeholders(len(periodKeys))+`) AND unlocked_at IS NULL
ORDER BY locked_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: list active locks: %w", err)
	}
	return collectLocks(rows)
}

func (r *repository) ListPeriodLocks(ctx context.Context, filter periodlock.ListFilter) ([]periodlock.Lock, error) {
	query := `SELECT ` + lockColumns + ` FROM period_locks WHERE 1 = 1`
	var args []any
	if filter.PeriodType != "" {
		query += ` AND period_type = ?`
		args = append(args, string(filter.PeriodType))
	}
	if filter.ActiveOnly {
		query += ` AND unlocked_at IS NULL`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY locked_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: list locks: %w", err)
	}
	return collectLocks(rows)
}

func collectLocks(rows *sql.Rows) ([]periodlock.Lock, error) {
	defer rows.Close()
	locks := make([]periodlock.Lock, 0)
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("store/sqlite: scan lock: %w", err)
		}
		locks = append(locks, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: lock rows: %w", err)
	}
	return locks, nil
}

func scanLock(row rowScanner) (periodlock.Lock, error) {
	var (
		lock                               periodlock.Lock
		periodType, lockedAt               string
		lockedBy, unlockedBy, unlockReason sql.NullString
		unlockedAt                         sql.NullString
	)
	if err := row.Scan(&lock.ID, &periodType, &lock.PeriodKey, &lock.Reason, &lockedBy, &lockedAt, &unlockedBy, &unlockedAt, &unlockReason); err != nil {
		return periodlock.Lock{}, err
	}
	at, err := parseTime(lockedAt)
	if err != nil {
		return periodlock.Lock{}, err
	}
	released, err := parseNullableTime(unlockedAt)
	if err != nil {
		return periodlock.Lock{}, err
	}
	lock.PeriodType = periodlock.PeriodType(periodType)
	lock.LockedBy = lockedBy.String
	lock.LockedAt = at
	lock.UnlockedBy = unlockedBy.String
	lock.UnlockedAt = released
	lock.UnlockReason = unlockReason.String
	return lock, nil
}
