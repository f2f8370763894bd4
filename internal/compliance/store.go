// Package compliance binds the audit ledger, period locks and the sequence
// allocator into single transactions and exposes the call-site API that
// financial record mutations go through.
package compliance

import (
	"context"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
	"github.com/odyssey-erp/gobd-ledger/internal/sequence"
)

// Tx is one storage transaction covering every compliance table.
type Tx interface {
	audit.Repository
	periodlock.Repository
	sequence.Repository
	records.Repository
}

// Store runs fn inside a transaction. Any error returned by fn rolls back every
// write made through the Tx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Locker guards a maintenance run across instances. Acquire fails with an
// error wrapping shared.ErrLockHeld while another owner holds the lock.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}
