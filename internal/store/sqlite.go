package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/smartsync/internal/shared"
)

// SQLiteStore keeps documents in the documents table of a migrated database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a database on which migrations have already run.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Read(ctx context.Context, ownerID, key string) ([]byte, error) {
	if err := checkAddress(ownerID, key); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE owner_id = ? AND doc_key = ?`, ownerID, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	return data, nil
}

func (s *SQLiteStore) WriteAtomic(ctx context.Context, ownerID, key string, data []byte) error {
	if err := checkAddress(ownerID, key); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", shared.ErrPersistence, err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO documents (owner_id, doc_key, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(owner_id, doc_key) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := tx.ExecContext(ctx, query, ownerID, key, data); err != nil {
		return fmt.Errorf("%w: writing %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", shared.ErrPersistence, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ownerID, key string) error {
	if err := checkAddress(ownerID, key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE owner_id = ? AND doc_key = ?`, ownerID, key); err != nil {
		return fmt.Errorf("%w: deleting %s/%s: %v", shared.ErrPersistence, ownerID, key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, ownerID string) ([]string, error) {
	if !shared.ValidID(ownerID) {
		return nil, fmt.Errorf("%w: owner id %q", shared.ErrInvalidInput, ownerID)
	}
	return s.column(ctx, `SELECT doc_key FROM documents WHERE owner_id = ? ORDER BY doc_key`, ownerID)
}

func (s *SQLiteStore) Owners(ctx context.Context) ([]string, error) {
	return s.column(ctx, `SELECT DISTINCT owner_id FROM documents ORDER BY owner_id`)
}

func (s *SQLiteStore) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", shared.ErrPersistence, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPersistence, err)
	}
	return out, nil
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteStore) Close() error { return nil }
