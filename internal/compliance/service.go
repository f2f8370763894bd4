package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
	"github.com/odyssey-erp/gobd-ledger/internal/sequence"
)

// ErrStoreNotConfigured is returned when the service has no store.
var ErrStoreNotConfigured = errors.New("compliance: store not configured")

// Service runs every compliance operation in its own transaction.
type Service struct {
	store           Store
	ledger          *audit.Ledger
	locks           *periodlock.Service
	alloc           *sequence.Allocator
	logger          *slog.Logger
	now             func() time.Time
	newBackfillLock func() Locker
	observer        Observer
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLedger replaces the default audit ledger.
func WithLedger(ledger *audit.Ledger) Option {
	return func(s *Service) {
		if ledger != nil {
			s.ledger = ledger
		}
	}
}

// WithAllocator replaces the default sequence allocator.
func WithAllocator(alloc *sequence.Allocator) Option {
	return func(s *Service) {
		if alloc != nil {
			s.alloc = alloc
		}
	}
}

// WithBackfillLock installs a cross-instance guard for backfill runs.
func WithBackfillLock(newLock func() Locker) Option {
	return func(s *Service) {
		s.newBackfillLock = newLock
	}
}

// Observer receives compliance events for metrics.
type Observer interface {
	audit.Observer
	periodlock.Observer
	sequence.Observer
}

// WithObserver attaches one observer to the default ledger, the lock gate and
// the allocator.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

var ignoredAuditFields = []string{"updated_at"}

// NewService wires a Service over store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		ledgerOpts := []audit.Option{audit.WithIgnoredFields(ignoredAuditFields...)}
		if s.observer != nil {
			ledgerOpts = append(ledgerOpts, audit.WithObserver(s.observer))
		}
		s.ledger = audit.NewLedger(ledgerOpts...)
	}
	if s.alloc == nil {
		s.alloc = sequence.NewAllocator()
	}
	s.locks = periodlock.NewService(s.ledger, s.logger)
	if s.observer != nil {
		s.alloc.WithObserver(s.observer)
		s.locks.WithObserver(s.observer)
	}
	return s
}

// WithNow overrides the clock of the service and its components.
func (s *Service) WithNow(now func() time.Time) {
	if now == nil {
		return
	}
	s.now = now
	s.ledger.WithNow(now)
	s.locks.WithNow(now)
}

// Run executes fn in one transaction. Period gate, storage write, number
// allocation and audit entries made through the Scope commit or roll back
// together.
func (s *Service) Run(ctx context.Context, fn func(ctx context.Context, sc *Scope) error) error {
	if s.store == nil {
		return ErrStoreNotConfigured
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &Scope{svc: s, tx: tx})
	})
}

// GetAuditTrail returns the chronological history of one entity.
func (s *Service) GetAuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	var entries []audit.Entry
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		entries, err = s.ledger.Trail(ctx, sc.tx, entityType, entityID)
		return err
	})
	if entries == nil && err == nil {
		entries = []audit.Entry{}
	}
	return entries, err
}

// SearchAuditLog returns a page of entries matching filters.
func (s *Service) SearchAuditLog(ctx context.Context, filters audit.SearchFilters) (audit.SearchResult, error) {
	var result audit.SearchResult
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		result, err = s.ledger.Search(ctx, sc.tx, filters)
		return err
	})
	return result, err
}

// LockPeriod locks a month, quarter or year.
func (s *Service) LockPeriod(ctx context.Context, in periodlock.LockInput, actx audit.Context) (periodlock.Lock, error) {
	var lock periodlock.Lock
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		lock, err = s.locks.LockPeriod(ctx, sc.tx, in, actx)
		return err
	})
	return lock, err
}

// UnlockPeriod releases the active lock on periodKey.
func (s *Service) UnlockPeriod(ctx context.Context, periodKey, reason string, actx audit.Context) (periodlock.Lock, error) {
	var lock periodlock.Lock
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		lock, err = s.locks.UnlockPeriod(ctx, sc.tx, periodKey, reason, actx)
		return err
	})
	return lock, err
}

// CheckPeriodLock returns the active lock covering date, or nil.
func (s *Service) CheckPeriodLock(ctx context.Context, date time.Time) (*periodlock.Lock, error) {
	var lock *periodlock.Lock
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		lock, err = sc.CheckPeriodLock(ctx, date)
		return err
	})
	return lock, err
}

// IsPeriodLocked reports whether periodKey itself is actively locked.
func (s *Service) IsPeriodLocked(ctx context.Context, periodKey string) (bool, error) {
	var locked bool
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		locked, err = s.locks.IsPeriodLocked(ctx, sc.tx, periodKey)
		return err
	})
	return locked, err
}

// EnforcePeriodLock is the standalone gate for callers that write outside Run.
func (s *Service) EnforcePeriodLock(ctx context.Context, date time.Time, operation string) error {
	return s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		return sc.EnforcePeriodLock(ctx, date, operation)
	})
}

// GetPeriodLocks lists locks, newest first.
func (s *Service) GetPeriodLocks(ctx context.Context, filter periodlock.ListFilter) ([]periodlock.Lock, error) {
	var locks []periodlock.Lock
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		locks, err = s.locks.GetPeriodLocks(ctx, sc.tx, filter)
		return err
	})
	return locks, err
}

// GetNextSequenceNumber draws and commits one reference number.
func (s *Service) GetNextSequenceNumber(ctx context.Context, documentType string, year int) (string, error) {
	var ref string
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		ref, err = sc.NextSequenceNumber(ctx, documentType, year)
		return err
	})
	return ref, err
}

// SequenceGaps reports numbers issued for (documentType, year) that no record
// holds any more.
func (s *Service) SequenceGaps(ctx context.Context, documentType string, year int) (sequence.GapReport, error) {
	if err := sequence.Validate(documentType, year); err != nil {
		return sequence.GapReport{}, err
	}
	var report sequence.GapReport
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		last, err := sc.tx.CurrentSequence(ctx, documentType, year)
		if err != nil {
			return fmt.Errorf("compliance: current sequence: %w", err)
		}
		held, err := sc.tx.ListReferenceNumbers(ctx, sequence.Prefix(documentType, year))
		if err != nil {
			return fmt.Errorf("compliance: list reference numbers: %w", err)
		}
		report = sequence.Gaps(documentType, year, last, held)
		return nil
	})
	if err == nil && len(report.Missing) > 0 {
		s.logger.InfoContext(ctx, "sequence gaps found",
			slog.String("document_type", documentType),
			slog.Int("year", year),
			slog.Int("missing", len(report.Missing)),
		)
	}
	return report, err
}
