// Package records models the income and expense documents guarded by the
// compliance core.
package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/gobd-ledger/internal/sequence"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// Kind distinguishes income from expense records.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// Kinds lists every numbered record kind.
var Kinds = []Kind{KindIncome, KindExpense}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// DocumentType returns the reference number prefix of the kind.
func (k Kind) DocumentType() string {
	if k == KindExpense {
		return sequence.DocumentTypeExpense
	}
	return sequence.DocumentTypeIncome
}

// Record is one income or expense document. Date is the effective booking date
// checked against period locks.
type Record struct {
	ID              uuid.UUID  `json:"id"`
	Kind            Kind       `json:"kind"`
	Date            time.Time  `json:"date"`
	AmountCents     int64      `json:"amount_cents"`
	Currency        string     `json:"currency"`
	Description     string     `json:"description"`
	Counterparty    string     `json:"counterparty"`
	ReferenceNumber string     `json:"reference_number,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the record was soft deleted.
func (r Record) Deleted() bool {
	return r.DeletedAt != nil
}

// Input holds the user supplied fields of a record.
type Input struct {
	Kind         Kind
	Date         time.Time
	AmountCents  int64
	Currency     string
	Description  string
	Counterparty string
}

// Normalize trims text fields, truncates the date to a calendar day and
// validates what storage needs. Business semantics are not checked.
func (in Input) Normalize() (Input, error) {
	if !in.Kind.Valid() {
		return Input{}, fmt.Errorf("%w: kind %q", ErrInvalidRecord, in.Kind)
	}
	if in.Date.IsZero() {
		return Input{}, fmt.Errorf("%w: date required", ErrInvalidRecord)
	}
	y, m, d := in.Date.Date()
	in.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = "EUR"
	}
	if len(in.Currency) != 3 {
		return Input{}, fmt.Errorf("%w: currency %q", ErrInvalidRecord, in.Currency)
	}
	in.Description = strings.TrimSpace(in.Description)
	in.Counterparty = strings.TrimSpace(in.Counterparty)
	return in, nil
}

// Apply copies the input onto r. Kind never changes after creation.
func (r Record) Apply(in Input) Record {
	r.Date = in.Date
	r.AmountCents = in.AmountCents
	r.Currency = in.Currency
	r.Description = in.Description
	r.Counterparty = in.Counterparty
	return r
}

// Repository persists records. GetRecord returns soft deleted rows too.
type Repository interface {
	InsertRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, id uuid.UUID) (Record, error)
	UpdateRecord(ctx context.Context, rec Record) error
	DeleteRecord(ctx context.Context, id uuid.UUID) error
	SoftDeleteRecord(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListUnnumberedRecords returns records of kind without a reference number,
	// soft deleted ones included, ordered by date, created_at, id.
	ListUnnumberedRecords(ctx context.Context, kind Kind) ([]Record, error)
	// AssignReferenceNumber sets the number only if the record has none yet and
	// reports whether it did.
	AssignReferenceNumber(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error)
	ListReferenceNumbers(ctx context.Context, prefix string) ([]string, error)
}

var (
	// ErrRecordNotFound indicates an unknown record id.
	ErrRecordNotFound = fmt.Errorf("records: record not found: %w", shared.ErrNotFound)
	// ErrInvalidRecord indicates input storage cannot accept.
	ErrInvalidRecord = fmt.Errorf("records: invalid record: %w", shared.ErrValidation)
	// ErrDuplicateReference indicates a reference number already held by another record.
	ErrDuplicateReference = fmt.Errorf("records: reference number already assigned: %w", shared.ErrConflict)
	// ErrRecordDeleted indicates a write to a soft deleted record.
	ErrRecordDeleted = fmt.Errorf("records: record is deleted: %w", shared.ErrConflict)
)
