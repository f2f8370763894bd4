package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (r *repository) IncrementSequence(ctx context.Context, documentType string, year int) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `INSERT INTO sequence_counters (document_type, year, last_number)
VALUES (?, ?, 1)
ON CONFLICT (document_type, year) DO UPDATE SET last_number = last_number + 1
RETURNING last_number`, documentType, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store/sqlite: increment sequence: %w", err)
	}
	return n, nil
}

func (r *repository) CurrentSequence(ctx context.Context, documentType string, year int) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT last_number FROM sequence_counters WHERE document_type = ? AND year = ?`, documentType, year).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store/sqlite: current sequence: %w", err)
	}
	return n, nil
}
