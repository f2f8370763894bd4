// Package sequence issues gapless reference numbers per document type and year.
package sequence

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// Document types for numbered financial records.
const (
	DocumentTypeIncome  = "EI"
	DocumentTypeExpense = "EA"
)

const (
	minYear = 1000
	maxYear = 9999
)

var documentTypePattern = regexp.MustCompile(`^[A-Z]{1,10}$`)

var (
	// ErrInvalidDocumentType indicates a malformed document type.
	ErrInvalidDocumentType = fmt.Errorf("sequence: document type must be 1-10 upper case letters: %w", shared.ErrValidation)
	// ErrInvalidYear indicates a year outside 1000-9999.
	ErrInvalidYear = fmt.Errorf("sequence: year out of range: %w", shared.ErrValidation)
	// ErrInvalidReference indicates a string that is not a formatted reference number.
	ErrInvalidReference = fmt.Errorf("sequence: malformed reference number: %w", shared.ErrValidation)
)

// Counter is the durable state of one (document type, year) key.
type Counter struct {
	DocumentType string `json:"document_type"`
	Year         int    `json:"year"`
	LastNumber   int64  `json:"last_number"`
}

// Repository stores counters. IncrementSequence must atomically create the
// counter at 1 or add one to it and return the new value in a single statement.
type Repository interface {
	IncrementSequence(ctx context.Context, documentType string, year int) (int64, error)
	CurrentSequence(ctx context.Context, documentType string, year int) (int64, error)
}

// Observer is notified for every issued number.
type Observer interface {
	SequenceNumberIssued(documentType string)
}

// Allocator formats numbers drawn from a Repository.
type Allocator struct {
	observer Observer
}

// NewAllocator constructs an Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// WithObserver attaches an issue observer.
func (a *Allocator) WithObserver(o Observer) {
	a.observer = o
}

// Next draws the next number for (documentType, year). The number is consumed
// as soon as the surrounding transaction commits, even if the document that
// carries it is later deleted.
func (a *Allocator) Next(ctx context.Context, repo Repository, documentType string, year int) (string, error) {
	if err := Validate(documentType, year); err != nil {
		return "", err
	}
	n, err := repo.IncrementSequence(ctx, documentType, year)
	if err != nil {
		return "", err
	}
	if a.observer != nil {
		a.observer.SequenceNumberIssued(documentType)
	}
	return Format(documentType, year, n), nil
}

// Validate checks a counter key.
func Validate(documentType string, year int) error {
	if !documentTypePattern.MatchString(documentType) {
		return fmt.Errorf("%w: %q", ErrInvalidDocumentType, documentType)
	}
	if year < minYear || year > maxYear {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	return nil
}

// Format renders a reference number. The counter is padded to three digits and
// widens past 999.
func Format(documentType string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%03d", documentType, year, n)
}

// Prefix returns the common prefix of every number for (documentType, year).
func Prefix(documentType string, year int) string {
	return fmt.Sprintf("%s-%d-", documentType, year)
}

// Parse splits a formatted reference number.
func Parse(ref string) (documentType string, year int, n int64, err error) {
	parts := strings.Split(ref, "-")
	if len(parts) != 3 || !documentTypePattern.MatchString(parts[0]) {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil || year < minYear || year > maxYear {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	if len(parts[2]) < 3 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	n, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil || n < 1 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return parts[0], year, n, nil
}

// GapReport lists numbers issued by a counter that no stored document holds.
type GapReport struct {
	DocumentType string   `json:"document_type"`
	Year         int      `json:"year"`
	LastIssued   int64    `json:"last_issued"`
	Held         int      `json:"held"`
	Missing      []string `json:"missing"`
}

// Gaps compares the counter state with the numbers still held by documents.
// References that do not belong to the key are ignored.
func Gaps(documentType string, year int, lastIssued int64, held []string) GapReport {
	seen := make(map[int64]struct{}, len(held))
	for _, ref := range held {
		t, y, n, err := Parse(ref)
		if err != nil || t != documentType || y != year {
			continue
		}
		seen[n] = struct{}{}
	}
	missing := make([]int64, 0)
	for n := int64(1); n <= lastIssued; n++ {
		if _, ok := seen[n]; !ok {
			missing = append(missing, n)
		}
	}
	report := GapReport{
		DocumentType: documentType,
		Year:         year,
		LastIssued:   lastIssued,
		Held:         len(seen),
		Missing:      make([]string, 0, len(missing)),
	}
	for _, n := range missing {
		report.Missing = append(report.Missing, Format(documentType, year, n))
	}
	return report
}
