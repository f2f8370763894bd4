package compliance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
)

// GetRecord loads a record, soft deleted ones included.
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (records.Record, error) {
	var rec records.Record
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		var err error
		rec, err = sc.tx.GetRecord(ctx, id)
		return err
	})
	return rec, err
}

// CreateRecord stores a new income or expense record with the next reference
// number of its type and year.
func (s *Service) CreateRecord(ctx context.Context, in records.Input, actx audit.Context) (records.Record, error) {
	in, err := in.Normalize()
	if err != nil {
		return records.Record{}, err
	}
	var rec records.Record
	err = s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		if err := sc.EnforcePeriodLock(ctx, in.Date, "create "+string(in.Kind)); err != nil {
			return err
		}
		ref, err := sc.NextSequenceNumber(ctx, in.Kind.DocumentType(), in.Date.Year())
		if err != nil {
			return err
		}
		now := s.now().UTC()
		created := records.Record{
			ID:              uuid.New(),
			Kind:            in.Kind,
			ReferenceNumber: ref,
			CreatedAt:       now,
			UpdatedAt:       now,
		}.Apply(in)
		if err := sc.tx.InsertRecord(ctx, created); err != nil {
			return fmt.Errorf("compliance: insert record: %w", err)
		}
		if err := sc.RecordCreate(ctx, string(created.Kind), created.ID.String(), created, actx); err != nil {
			return err
		}
		rec = created
		return nil
	})
	return rec, err
}

// UpdateRecord replaces the editable fields of a record. Both the current and
// the new effective date must be outside locked periods.
func (s *Service) UpdateRecord(ctx context.Context, id uuid.UUID, in records.Input, actx audit.Context) (records.Record, error) {
	var rec records.Record
	err := s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		current, err := sc.tx.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if current.Deleted() {
			return records.ErrRecordDeleted
		}
		in.Kind = current.Kind
		normalized, err := in.Normalize()
		if err != nil {
			return err
		}
		operation := "update " + string(current.Kind)
		if err := sc.EnforcePeriodLock(ctx, current.Date, operation); err != nil {
			return err
		}
		if !normalized.Date.Equal(current.Date) {
			if err := sc.EnforcePeriodLock(ctx, normalized.Date, operation); err != nil {
				return err
			}
		}
		updated := current.Apply(normalized)
		updated.UpdatedAt = s.now().UTC()
		if err := sc.tx.UpdateRecord(ctx, updated); err != nil {
			return fmt.Errorf("compliance: update record: %w", err)
		}
		if err := sc.RecordUpdate(ctx, string(current.Kind), id.String(), current, updated, actx); err != nil {
			return err
		}
		rec = updated
		return nil
	})
	return rec, err
}

// DeleteRecord removes a record physically. Its reference number stays
// consumed.
func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID, actx audit.Context) error {
	return s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		current, err := sc.tx.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if err := sc.EnforcePeriodLock(ctx, current.Date, "delete "+string(current.Kind)); err != nil {
			return err
		}
		if err := sc.tx.DeleteRecord(ctx, id); err != nil {
			return fmt.Errorf("compliance: delete record: %w", err)
		}
		return sc.RecordDelete(ctx, string(current.Kind), id.String(), current, actx)
	})
}

// SoftDeleteRecord marks a record deleted while keeping the row.
func (s *Service) SoftDeleteRecord(ctx context.Context, id uuid.UUID, actx audit.Context) error {
	return s.Run(ctx, func(ctx context.Context, sc *Scope) error {
		current, err := sc.tx.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if current.Deleted() {
			return records.ErrRecordDeleted
		}
		if err := sc.EnforcePeriodLock(ctx, current.Date, "delete "+string(current.Kind)); err != nil {
			return err
		}
		if err := sc.tx.SoftDeleteRecord(ctx, id, s.now().UTC()); err != nil {
			return fmt.Errorf("compliance: soft delete record: %w", err)
		}
		return sc.RecordSoftDelete(ctx, string(current.Kind), id.String(), current, actx)
	})
}
