package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
)

const (
	codeUniqueViolation = "23505"
	// codeImmutable is raised by the audit_entries triggers.
	codeImmutable = "GB001"

	constraintActiveLock = "period_locks_active_key"
	constraintReference  = "financial_records_reference_number_key"
)

func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeImmutable:
		return fmt.Errorf("%w: %s", audit.ErrImmutableEntry, pgErr.Message)
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintActiveLock:
			return periodlock.ErrAlreadyLocked
		case constraintReference:
			return records.ErrDuplicateReference
		}
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
