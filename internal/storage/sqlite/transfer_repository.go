package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/echotrails/native/internal/storage"
)

type TransferRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTransferRepository(dbConn *sql.DB) *TransferRepository {
	return &TransferRepository{db: dbConn, now: time.Now}
}

const selectTransfers = `SELECT kind, transfer_key, source, file_path, status, bytes, digest, error, updated_at FROM transfers`

func (r *TransferRepository) GetTransfers(ctx context.Context, kind string) ([]storage.TransferRecord, error) {
	query := selectTransfers
	args := []any{}

	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}

	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.TransferRecord

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, *record)
	}

	return records, rows.Err()
}

func (r *TransferRepository) GetTransfer(ctx context.Context, kind, key string) (*storage.TransferRecord, error) {
	row := r.db.QueryRowContext(ctx, selectTransfers+` WHERE kind = ? AND transfer_key = ?`, kind, key)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}

	return record, err
}

func (r *TransferRepository) TrackTransfer(ctx context.Context, record storage.TransferRecord) error {
	if record.UpdatedAt == "" {
		record.UpdatedAt = r.now().UTC().Format(time.RFC3339)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transfers (kind, transfer_key, source, file_path, status, bytes, digest, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, transfer_key) DO UPDATE SET
			source = excluded.source,
			file_path = excluded.file_path,
			status = excluded.status,
			bytes = excluded.bytes,
			digest = excluded.digest,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, record.Kind, record.Key, record.Source, record.Path, record.Status, record.Bytes, record.Digest, record.Error, record.UpdatedAt)

	return err
}

func (r *TransferRepository) DeleteTransfer(ctx context.Context, kind, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transfers WHERE kind = ? AND transfer_key = ?`, kind, key)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*storage.TransferRecord, error) {
	var record storage.TransferRecord

	err := s.Scan(
		&record.Kind,
		&record.Key,
		&record.Source,
		&record.Path,
		&record.Status,
		&record.Bytes,
		&record.Digest,
		&record.Error,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

var _ storage.TransferRepository = (*TransferRepository)(nil)
