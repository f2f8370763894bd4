package compliance

import (
	"context"
	"time"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
)

// Scope is the transaction-bound API for mutation call sites. A Scope is only
// valid inside the Run callback that produced it.
type Scope struct {
	svc *Service
	tx  Tx
}

// Tx exposes the underlying transaction for the storage write itself.
func (s *Scope) Tx() Tx {
	return s.tx
}

// EnforcePeriodLock fails with *periodlock.PeriodLockedError when date is locked.
func (s *Scope) EnforcePeriodLock(ctx context.Context, date time.Time, operation string) error {
	return s.svc.locks.EnforcePeriodLock(ctx, s.tx, date, operation)
}

// CheckPeriodLock returns the lock covering date, or nil.
func (s *Scope) CheckPeriodLock(ctx context.Context, date time.Time) (*periodlock.Lock, error) {
	return s.svc.locks.CheckPeriodLock(ctx, s.tx, date)
}

// NextSequenceNumber draws a reference number that is consumed only if the
// transaction commits.
func (s *Scope) NextSequenceNumber(ctx context.Context, documentType string, year int) (string, error) {
	return s.svc.alloc.Next(ctx, s.tx, documentType, year)
}

// RecordCreate appends the full snapshot of a new record.
func (s *Scope) RecordCreate(ctx context.Context, entityType, entityID string, record any, actx audit.Context) error {
	return s.svc.ledger.RecordCreate(ctx, s.tx, entityType, entityID, record, actx)
}

// RecordUpdate appends one entry per changed field, or none when nothing changed.
func (s *Scope) RecordUpdate(ctx context.Context, entityType, entityID string, oldRecord, newRecord any, actx audit.Context) error {
	return s.svc.ledger.RecordUpdate(ctx, s.tx, entityType, entityID, oldRecord, newRecord, actx)
}

// RecordDelete appends the final snapshot of a hard deleted record.
func (s *Scope) RecordDelete(ctx context.Context, entityType, entityID string, record any, actx audit.Context) error {
	return s.svc.ledger.RecordDelete(ctx, s.tx, entityType, entityID, record, actx)
}

// RecordSoftDelete appends the snapshot of a record marked deleted.
func (s *Scope) RecordSoftDelete(ctx context.Context, entityType, entityID string, record any, actx audit.Context) error {
	return s.svc.ledger.RecordSoftDelete(ctx, s.tx, entityType, entityID, record, actx)
}
