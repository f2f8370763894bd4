// Package periodlock tracks locked accounting periods and gates writes whose
// effective date falls inside one.
package periodlock

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

// PeriodType enumerates lockable period granularities.
type PeriodType string

const (
	PeriodMonth   PeriodType = "month"
	PeriodQuarter PeriodType = "quarter"
	PeriodYear    PeriodType = "year"
)

// Valid reports whether t is a known granularity.
func (t PeriodType) Valid() bool {
	switch t {
	case PeriodMonth, PeriodQuarter, PeriodYear:
		return true
	default:
		return false
	}
}

// EntityType is the audit entity tag used for lock and unlock entries.
const EntityType = "period_lock"

const maxReasonLength = 500

var (
	monthKeyPattern   = regexp.MustCompile(`^(\d{4})-(0[1-9]|1[0-2])$`)
	quarterKeyPattern = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	yearKeyPattern    = regexp.MustCompile(`^(\d{4})$`)
)

// Period is a parsed period key with its half-open date interval [Start, End).
type Period struct {
	Type  PeriodType
	Key   string
	Start time.Time
	End   time.Time
}

// ParsePeriod validates key strictly against the format of t.
func ParsePeriod(t PeriodType, key string) (Period, error) {
	var pattern *regexp.Regexp
	switch t {
	case PeriodMonth:
		pattern = monthKeyPattern
	case PeriodQuarter:
		pattern = quarterKeyPattern
	case PeriodYear:
		pattern = yearKeyPattern
	default:
		return Period{}, fmt.Errorf("%w: unknown period type %q", ErrInvalidPeriodKey, t)
	}
	m := pattern.FindStringSubmatch(key)
	if m == nil {
		return Period{}, fmt.Errorf("%w: %q is not a valid %s key", ErrInvalidPeriodKey, key, t)
	}
	year, _ := strconv.Atoi(m[1])
	p := Period{Type: t, Key: key}
	switch t {
	case PeriodMonth:
		month, _ := strconv.Atoi(m[2])
		p.Start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		p.End = p.Start.AddDate(0, 1, 0)
	case PeriodQuarter:
		q, _ := strconv.Atoi(m[2])
		p.Start = time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		p.End = p.Start.AddDate(0, 3, 0)
	case PeriodYear:
		p.Start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		p.End = p.Start.AddDate(1, 0, 0)
	}
	return p, nil
}

// InferPeriodType derives the granularity from the shape of key. The three
// formats are disjoint, so a key identifies its type.
func InferPeriodType(key string) (PeriodType, error) {
	switch {
	case monthKeyPattern.MatchString(key):
		return PeriodMonth, nil
	case quarterKeyPattern.MatchString(key):
		return PeriodQuarter, nil
	case yearKeyPattern.MatchString(key):
		return PeriodYear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
	}
}

// Contains reports whether the calendar date of d lies within the period.
// Both boundary days are included.
func (p Period) Contains(d time.Time) bool {
	day := calendarDay(d)
	return !day.Before(p.Start) && day.Before(p.End)
}

// MonthKey returns the YYYY-MM key of d.
func MonthKey(d time.Time) string {
	return fmt.Sprintf("%04d-%02d", d.Year(), int(d.Month()))
}

// QuarterKey returns the YYYY-QN key of d.
func QuarterKey(d time.Time) string {
	return fmt.Sprintf("%04d-Q%d", d.Year(), (int(d.Month())-1)/3+1)
}

// YearKey returns the YYYY key of d.
func YearKey(d time.Time) string {
	return fmt.Sprintf("%04d", d.Year())
}

func candidateKeys(d time.Time) []string {
	return []string{MonthKey(d), QuarterKey(d), YearKey(d)}
}

func calendarDay(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// Lock is one lock lifecycle instance. Unlocked rows are kept as history.
type Lock struct {
	ID           int64      `json:"id"`
	PeriodType   PeriodType `json:"period_type"`
	PeriodKey    string     `json:"period_key"`
	Reason       string     `json:"reason"`
	LockedBy     string     `json:"locked_by,omitempty"`
	LockedAt     time.Time  `json:"locked_at"`
	UnlockedBy   string     `json:"unlocked_by,omitempty"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
	UnlockReason string     `json:"unlock_reason,omitempty"`
}

// Active reports whether the lock has not been released.
func (l Lock) Active() bool {
	return l.UnlockedAt == nil
}

// Contains reports whether d falls inside the locked period.
func (l Lock) Contains(d time.Time) bool {
	p, err := ParsePeriod(l.PeriodType, l.PeriodKey)
	if err != nil {
		return false
	}
	return p.Contains(d)
}

// LockInput captures a lock request.
type LockInput struct {
	PeriodType PeriodType
	PeriodKey  string
	Reason     string
}

// ListFilter narrows GetPeriodLocks. Zero values list everything.
type ListFilter struct {
	PeriodType PeriodType
	ActiveOnly bool
}

// Repository persists lock rows. InsertPeriodLock must enforce at most one
// active row per key and report a violation as ErrAlreadyLocked.
type Repository interface {
	InsertPeriodLock(ctx context.Context, lock Lock) (Lock, error)
	FindActivePeriodLock(ctx context.Context, periodKey string) (Lock, bool, error)
	MarkPeriodUnlocked(ctx context.Context, id int64, unlockedBy, reason string, at time.Time) (Lock, error)
	ListActivePeriodLocks(ctx context.Context, periodKeys []string) ([]Lock, error)
	ListPeriodLocks(ctx context.Context, filter ListFilter) ([]Lock, error)
}

// Tx is the transactional handle lock and unlock need: lock rows plus the audit
// table, written together.
type Tx interface {
	Repository
	audit.Repository
}

var (
	// ErrInvalidPeriodKey indicates a key that does not match its period type.
	ErrInvalidPeriodKey = fmt.Errorf("periodlock: invalid period key: %w", shared.ErrValidation)
	// ErrInvalidReason indicates a missing or overlong reason.
	ErrInvalidReason = fmt.Errorf("periodlock: reason required (max %d characters): %w", maxReasonLength, shared.ErrValidation)
	// ErrAlreadyLocked indicates an active lock already exists for the key.
	ErrAlreadyLocked = fmt.Errorf("periodlock: period already locked: %w", shared.ErrConflict)
	// ErrLockNotFound indicates no active lock exists for the key.
	ErrLockNotFound = fmt.Errorf("periodlock: no active lock: %w", shared.ErrNotFound)
)

func normalizeReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || len([]rune(reason)) > maxReasonLength {
		return "", ErrInvalidReason
	}
	return reason, nil
}
