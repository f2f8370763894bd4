package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/gobd-ledger/internal/records"
)

const recordColumns = `id, kind, record_date, amount_cents, currency, description, counterparty, reference_number, created_at, updated_at, deleted_at`

func (r *repository) InsertRecord(ctx context.Context, rec records.Record) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO financial_records (`+recordColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), string(rec.Kind), rec.Date.Format(dateLayout), rec.AmountCents, rec.Currency,
		rec.Description, rec.Counterparty, nullable(rec.ReferenceNumber),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), nullableTime(rec.DeletedAt))
	return translate(err)
}

func (r *repository) GetRecord(ctx context.Context, id uuid.UUID) (records.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM financial_records WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return records.Record{}, records.ErrRecordNotFound
	}
	if err != nil {
		return records.Record{}, fmt.Errorf("store/sqlite: get record: %w", err)
	}
	return rec, nil
}

func (r *repository) UpdateRecord(ctx context.Context, rec records.Record) error {
	res, err := r.db.ExecContext(ctx, `UPDATE financial_records
SET record_date = ?, amount_cents = ?, currency = ?, description = ?, counterparty = ?, updated_at = ?
WHERE id = ?`,
		rec.Date.Format(dateLayout), rec.AmountCents, rec.Currency, rec.Description, rec.Counterparty,
		formatTime(rec.UpdatedAt), rec.ID.String())
	return affectedOne(res, translate(err))
}

func (r *repository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM financial_records WHERE id = ?`, id.String())
	return affectedOne(res, translate(err))
}

func (r *repository) SoftDeleteRecord(ctx context.Context, id uuid.UUID, at time.Time) error {
	ts := formatTime(at)
	res, err := r.db.ExecContext(ctx, `UPDATE financial_records SET deleted_at = ?, updated_at = ? WHERE id = ?`, ts, ts, id.String())
	return affectedOne(res, translate(err))
}

func (r *repository) ListUnnumberedRecords(ctx context.Context, kind records.Kind) ([]records.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM financial_records
WHERE kind = ? AND reference_number IS NULL
ORDER BY record_date ASC, created_at ASC, id ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: list unnumbered records: %w", err)
	}
	defer rows.Close()
	out := make([]records.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store/sqlite: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: record rows: %w", err)
	}
	return out, nil
}

func (r *repository) AssignReferenceNumber(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE financial_records SET reference_number = ?, updated_at = ?
WHERE id = ? AND reference_number IS NULL`, ref, formatTime(at), id.String())
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) ListReferenceNumbers(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT reference_number FROM financial_records
WHERE substr(reference_number, 1, ?) = ?
ORDER BY reference_number`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: list reference numbers: %w", err)
	}
	defer rows.Close()
	refs := make([]string, 0)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("store/sqlite: scan reference number: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return records.ErrRecordNotFound
	}
	return nil
}

func scanRecord(row rowScanner) (records.Record, error) {
	var (
		rec                  records.Record
		id, kind, date       string
		createdAt, updatedAt string
		reference, deletedAt sql.NullString
	)
	if err := row.Scan(&id, &kind, &date, &rec.AmountCents, &rec.Currency, &rec.Description, &rec.Counterparty,
		&reference, &createdAt, &updatedAt, &deletedAt); err != nil {
		return records.Record{}, err
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return records.Record{}, err
	}
	if rec.Date, err = time.Parse(dateLayout, date); err != nil {
		return records.Record{}, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return records.Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return records.Record{}, err
	}
	if rec.DeletedAt, err = parseNullableTime(deletedAt); err != nil {
		return records.Record{}, err
	}
	rec.Kind = records.Kind(kind)
	rec.ReferenceNumber = reference.String
	return rec, nil
}
