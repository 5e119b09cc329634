package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
)

// RunRepository persists [models.RefreshRun] records in SQLite.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	id, sequence, owner_id, list_id, list_name, reason, status, message,
	external_list_id, item_count, runtime_seconds, started_at, completed_at, created_at
`

// Create inserts a run with a generated sequence number.
func (r *RunRepository) Create(ctx context.Context, run *models.RefreshRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "refresh_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.Sequence = sequence
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := `INSERT INTO refresh_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var message any = run.Message
	if run.Message == "" {
		message = nil
	}

	var externalID any = run.ExternalListID
	if run.ExternalListID == "" {
		externalID = nil
	}

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.Sequence,
		run.OwnerID,
		run.ListID,
		run.ListName,
		string(run.Reason),
		string(run.Status),
		message,
		externalID,
		run.ItemCount,
		run.RuntimeSeconds,
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(ctx context.Context, id string) (*models.RefreshRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM refresh_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("refresh run not found: %s", id)
	}
	return run, err
}

// List retrieves runs matching the given criteria, newest first.
//
// Supported criteria: "owner_id", "list_id", "status" (strings) and "limit" (int).
func (r *RunRepository) List(ctx context.Context, criteria map[string]any) ([]*models.RefreshRun, error) {
	query := `SELECT ` + runColumns + ` FROM refresh_runs WHERE 1 = 1`
	args := []any{}

	if ownerID, ok := criteria["owner_id"].(string); ok && ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}

	if listID, ok := criteria["list_id"].(string); ok && listID != "" {
		query += " AND list_id = ?"
		args = append(args, listID)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RefreshRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Prune deletes runs created before cutoff and returns how many were removed.
func (r *RunRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_runs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune refresh runs: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row from [sql.Row] or [sql.Rows] into a [models.RefreshRun]
func scanRun(s scanner) (*models.RefreshRun, error) {
	var (
		run         models.RefreshRun
		reason      string
		status      string
		message     sql.NullString
		externalID  sql.NullString
		completedAt sql.NullTime
	)

	err := s.Scan(
		&run.ID, &run.Sequence, &run.OwnerID, &run.ListID, &run.ListName, &reason, &status, &message,
		&externalID, &run.ItemCount, &run.RuntimeSeconds, &run.StartedAt, &completedAt, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan refresh run: %w", err)
	}

	run.Reason = models.Reason(reason)
	run.Status = models.RunStatus(status)
	if message.Valid {
		run.Message = message.String
	}
	if externalID.Valid {
		run.ExternalListID = externalID.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}
