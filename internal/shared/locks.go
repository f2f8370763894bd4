package shared

import "errors"

// ErrLockHeld indicates another owner holds a distributed lock.
var ErrLockHeld = errors.New("lock held by another owner")

// ReferenceBackfillLockKey builds the redis key guarding reference number backfills.
func ReferenceBackfillLockKey() string {
	return "gobd:sequence:backfill:lock"
}
