package shared

import "errors"

// Error classes shared by the compliance core. Package level errors wrap one of
// these so callers can branch with errors.Is without knowing the package.
var (
	// ErrValidation indicates malformed input such as an invalid period key.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the target state already exists.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrPeriodLocked indicates a write into a locked accounting period.
	ErrPeriodLocked = errors.New("period locked")
	// ErrStorageIntegrity indicates an attempt to rewrite immutable history.
	ErrStorageIntegrity = errors.New("storage integrity violation")
)
