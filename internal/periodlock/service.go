package periodlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
)

// Observer is notified about writes rejected by EnforcePeriodLock.
type Observer interface {
	PeriodLockRejected(periodType string)
}

// Service implements the lock state machine and the write gate.
type Service struct {
	ledger   *audit.Ledger
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// NewService constructs a Service writing lock history through ledger.
func NewService(ledger *audit.Ledger, logger *slog.Logger) *Service {
	if ledger == nil {
		ledger = audit.NewLedger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver attaches a rejection observer.
func (s *Service) WithObserver(o Observer) {
	s.observer = o
}

// LockPeriod locks a period. The key is validated before anything is read or
// written.
func (s *Service) LockPeriod(ctx context.Context, tx Tx, in LockInput, actx audit.Context) (Lock, error) {
	key := strings.TrimSpace(in.PeriodKey)
	periodType := in.PeriodType
	if periodType == "" {
		inferred, err := InferPeriodType(key)
		if err != nil {
			return Lock{}, err
		}
		periodType = inferred
	}
	if _, err := ParsePeriod(periodType, key); err != nil {
		return Lock{}, err
	}
	reason, err := normalizeReason(in.Reason)
	if err != nil {
		return Lock{}, err
	}

	if _, found, err := tx.FindActivePeriodLock(ctx, key); err != nil {
		return Lock{}, err
	} else if found {
		return Lock{}, fmt.Errorf("%w: %s", ErrAlreadyLocked, key)
	}

	lock, err := tx.InsertPeriodLock(ctx, Lock{
		PeriodType: periodType,
		PeriodKey:  key,
		Reason:     reason,
		LockedBy:   strings.TrimSpace(actx.UserID),
		LockedAt:   s.now().UTC(),
	})
	if err != nil {
		return Lock{}, err
	}
	if err := s.ledger.RecordLock(ctx, tx, EntityType, key, lock, actx); err != nil {
		return Lock{}, err
	}
	s.logger.InfoContext(ctx, "period locked",
		slog.String("period_type", string(periodType)),
		slog.String("period_key", key),
		slog.String("user_id", actx.UserID),
	)
	return lock, nil
}

// UnlockPeriod releases the active lock on key, whatever its type. The row is
// kept with the unlock reason.
func (s *Service) UnlockPeriod(ctx context.Context, tx Tx, periodKey, reason string, actx audit.Context) (Lock, error) {
	key := strings.TrimSpace(periodKey)
	if _, err := InferPeriodType(key); err != nil {
		return Lock{}, err
	}
	reason, err := normalizeReason(reason)
	if err != nil {
		return Lock{}, err
	}

	active, found, err := tx.FindActivePeriodLock(ctx, key)
	if err != nil {
		return Lock{}, err
	}
	if !found {
		return Lock{}, fmt.Errorf("%w: %s", ErrLockNotFound, key)
	}
	unlocked, err := tx.MarkPeriodUnlocked(ctx, active.ID, strings.TrimSpace(actx.UserID), reason, s.now().UTC())
	if err != nil {
		return Lock{}, err
	}
	if err := s.ledger.RecordUnlock(ctx, tx, EntityType, key, active, unlocked, actx); err != nil {
		return Lock{}, err
	}
	s.logger.InfoContext(ctx, "period unlocked",
		slog.String("period_key", key),
		slog.Int64("lock_id", active.ID),
		slog.String("user_id", actx.UserID),
	)
	return unlocked, nil
}

// CheckPeriodLock returns the active lock covering date, or nil. When several
// granularities match, the earliest lock wins.
func (s *Service) CheckPeriodLock(ctx context.Context, repo Repository, date time.Time) (*Lock, error) {
	locks, err := repo.ListActivePeriodLocks(ctx, candidateKeys(date))
	if err != nil {
		return nil, err
	}
	matches := make([]Lock, 0, len(locks))
	for _, l := range locks {
		if l.Active() && l.Contains(date) {
			matches = append(matches, l)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].LockedAt.Equal(matches[j].LockedAt) {
			return matches[i].LockedAt.Before(matches[j].LockedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	first := matches[0]
	return &first, nil
}

// IsPeriodLocked reports whether an active lock exists for exactly key.
func (s *Service) IsPeriodLocked(ctx context.Context, repo Repository, periodKey string) (bool, error) {
	key := strings.TrimSpace(periodKey)
	if _, err := InferPeriodType(key); err != nil {
		return false, nil
	}
	_, found, err := repo.FindActivePeriodLock(ctx, key)
	return found, err
}

// EnforcePeriodLock fails with *PeriodLockedError when date lies inside an
// active lock. Call sites invoke it before every write with a user-controlled
// effective date.
func (s *Service) EnforcePeriodLock(ctx context.Context, repo Repository, date time.Time, operation string) error {
	lock, err := s.CheckPeriodLock(ctx, repo, date)
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if s.observer != nil {
		s.observer.PeriodLockRejected(string(lock.PeriodType))
	}
	s.logger.WarnContext(ctx, "write rejected by period lock",
		slog.String("period_key", lock.PeriodKey),
		slog.String("operation", operation),
		slog.String("date", date.Format("2006-01-02")),
	)
	return &PeriodLockedError{
		PeriodType: lock.PeriodType,
		PeriodKey:  lock.PeriodKey,
		Reason:     lock.Reason,
		Operation:  operation,
		Date:       date,
	}
}

// GetPeriodLocks lists active and historical locks, newest first.
func (s *Service) GetPeriodLocks(ctx context.Context, repo Repository, filter ListFilter) ([]Lock, error) {
	if filter.PeriodType != "" && !filter.PeriodType.Valid() {
		return nil, fmt.Errorf("%w: unknown period type %q", ErrInvalidPeriodKey, filter.PeriodType)
	}
	locks, err := repo.ListPeriodLocks(ctx, filter)
	if err != nil {
		return nil, err
	}
	if locks == nil {
		locks = []Lock{}
	}
	return locks, nil
}

// IsPeriodLockedError reports whether err carries a *PeriodLockedError.
func IsPeriodLockedError(err error) (*PeriodLockedError, bool) {
	var locked *PeriodLockedError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}
