package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// IncrementSequence creates or bumps the counter in one statement. Concurrent
// callers on the same key queue on the row lock; other keys do not block.
func (r *repository) IncrementSequence(ctx context.Context, documentType string, year int) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `INSERT INTO sequence_counters (document_type, year, last_number, updated_at)
VALUES ($1, $2, 1, now())
ON CONFLICT (document_type, year)
DO UPDATE SET last_number = sequence_counters.last_number + 1, updated_at = now()
RETURNING last_number`, documentType, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store/postgres: increment sequence: %w", err)
	}
	return n, nil
}

func (r *repository) CurrentSequence(ctx context.Context, documentType string, year int) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT last_number FROM sequence_counters WHERE document_type = $1 AND year = $2`, documentType, year).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store/postgres: current sequence: %w", err)
	}
	return n, nil
}
