package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// ErrBackfillRunning indicates another instance holds the backfill lock.
var ErrBackfillRunning = fmt.Errorf("compliance: reference backfill already running: %w", shared.ErrConflict)

var errAlreadyNumbered = errors.New("compliance: record already numbered")

// BackfillResult counts the records numbered per kind.
type BackfillResult struct {
	Income   int `json:"income"`
	Expenses int `json:"expenses"`
}

// BackfillReferenceNumbers numbers every income and expense record that has no
// reference number yet, oldest date first, continuing from the current
// counters. Each record is committed on its own, so a failed run can simply be
// repeated.
func (s *Service) BackfillReferenceNumbers(ctx context.Context, actx audit.Context) (BackfillResult, error) {
	if s.store == nil {
		return BackfillResult{}, ErrStoreNotConfigured
	}
	if s.newBackfillLock != nil {
		lock := s.newBackfillLock()
		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, shared.ErrLockHeld) {
				return BackfillResult{}, ErrBackfillRunning
			}
			return BackfillResult{}, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "release backfill lock", slog.Any("error", err))
			}
		}()
	}

	var result BackfillResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.backfillKind(gctx, records.KindIncome, actx)
		result.Income = n
		return err
	})
	g.Go(func() error {
		n, err := s.backfillKind(gctx, records.KindExpense, actx)
		result.Expenses = n
		return err
	})
	err := g.Wait()
	if err != nil {
		s.logger.ErrorContext(ctx, "reference backfill failed",
			slog.Int("income", result.Income),
			slog.Int("expenses", result.Expenses),
			slog.Any("error", err),
		)
		return result, err
	}
	s.logger.InfoContext(ctx, "reference backfill finished",
		slog.Int("income", result.Income),
		slog.Int("expenses", result.Expenses),
	)
	return result, nil
}

func (s *Service) backfillKind(ctx context.Context, kind records.Kind, actx audit.Context) (int, error) {
	var pending []records.Record
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		pending, err = sc.tx.ListUnnumberedRecords(ctx, kind)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("compliance: list unnumbered %s: %w", kind, err)
	}

	assigned := 0
	for _, candidate := range pending {
		if err := ctx.Err(); err != nil {
			return assigned, err
		}
		err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
			current, err := sc.tx.GetRecord(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if current.ReferenceNumber != "" {
				return errAlreadyNumbered
			}
			ref, err := sc.NextSequenceNumber(ctx, kind.DocumentType(), current.Date.Year())
			if err != nil {
				return err
			}
			ok, err := sc.tx.AssignReferenceNumber(ctx, current.ID, ref, s.now().UTC())
			if err != nil {
				return fmt.Errorf("compliance: assign %s: %w", ref, err)
			}
			if !ok {
				return errAlreadyNumbered
			}
			numbered := current
			numbered.ReferenceNumber = ref
			return sc.RecordUpdate(ctx, string(kind), current.ID.String(), current, numbered, actx)
		})
		switch {
		case errors.Is(err, errAlreadyNumbered), errors.Is(err, records.ErrRecordNotFound):
			continue
		case err != nil:
			return assigned, err
		}
		assigned++
	}
	return assigned, nil
}
