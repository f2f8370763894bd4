package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/gobd-ledger/internal/records"
)

const recordColumns = `id, kind, record_date, amount_cents, currency, description, counterparty, reference_number, created_at, updated_at, deleted_at`

func (r *repository) InsertRecord(ctx context.Context, rec records.Record) error {
	_, err := r.db.Exec(ctx, `INSERT INTO financial_records (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, string(rec.Kind), rec.Date, rec.AmountCents, rec.Currency, rec.Description, rec.Counterparty,
		nullable(rec.ReferenceNumber), rec.CreatedAt, rec.UpdatedAt, rec.DeletedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

func (r *repository) GetRecord(ctx context.Context, id uuid.UUID) (records.Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM financial_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return records.Record{}, records.ErrRecordNotFound
	}
	if err != nil {
		return records.Record{}, fmt.Errorf("store/postgres: get record: %w", err)
	}
	return rec, nil
}

func (r *repository) UpdateRecord(ctx context.Context, rec records.Record) error {
	tag, err := r.db.Exec(ctx, `UPDATE financial_records
SET record_date = $2, amount_cents = $3, currency = $4, description = $5, counterparty = $6, updated_at = $7
WHERE id = $1`,
		rec.ID, rec.Date, rec.AmountCents, rec.Currency, rec.Description, rec.Counterparty, rec.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM financial_records WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SoftDeleteRecord(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE financial_records SET deleted_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListUnnumberedRecords(ctx context.Context, kind records.Kind) ([]records.Record, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+` FROM financial_records
WHERE kind = $1 AND reference_number IS NULL
ORDER BY record_date ASC, created_at ASC, id ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list unnumbered records: %w", err)
	}
	defer rows.Close()
	out := make([]records.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store/postgres: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/postgres: record rows: %w", err)
	}
	return out, nil
}

func (r *repository) AssignReferenceNumber(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE financial_records SET reference_number = $2, updated_at = $3
WHERE id = $1 AND reference_number IS NULL`, id, ref, at)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) ListReferenceNumbers(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT reference_number FROM financial_records
WHERE starts_with(reference_number, $1)
ORDER BY reference_number`, prefix)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list reference numbers: %w", err)
	}
	refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("store/postgres: collect reference numbers: %w", err)
	}
	if refs == nil {
		refs = []string{}
	}
	return refs, nil
}

func scanRecord(row pgx.Row) (records.Record, error) {
	var (
		rec       records.Record
		kind      string
		reference *string
		deletedAt *time.Time
	)
	if err := row.Scan(&rec.ID, &kind, &rec.Date, &rec.AmountCents, &rec.Currency, &rec.Description, &rec.Counterparty,
		&reference, &rec.CreatedAt, &rec.UpdatedAt, &deletedAt); err != nil {
		return records.Record{}, err
	}
	rec.Kind = records.Kind(kind)
	rec.Date = rec.Date.UTC()
	rec.ReferenceNumber = deref(reference)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if deletedAt != nil {
		at := deletedAt.UTC()
		rec.DeletedAt = &at
	}
	return rec, nil
}
