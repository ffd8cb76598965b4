// ABOUTME: Database operations for the sync_state table
// ABOUTME: Tracks each user's latest import run: status, error, timing, and counts
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/dayplan/models"
)

// RunRepository records import run state per user.
type RunRepository struct {
	db    *sql.DB
	clock func() time.Time
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db, clock: time.Now}
}

// MarkRunStarted sets the user's status to syncing and clears the last error.
func (r *RunRepository) MarkRunStarted(ctx context.Context, userID string) error {
	now := r.clock().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, status, started_at, created_at, updated_at)
		VALUES (?, 'syncing', ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = 'syncing',
			error_message = NULL,
			started_at = excluded.started_at,
			finished_at = NULL,
			updated_at = excluded.updated_at
	`, userID, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	return nil
}

// MarkRunSucceeded sets the user's status to idle and stores the counts.
func (r *RunRepository) MarkRunSucceeded(ctx context.Context, userID string, result models.ImportResult) error {
	now := r.clock().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, status, finished_at, imported_count, skipped_count, conflict_count, created_at, updated_at)
		VALUES (?, 'idle', ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = 'idle',
			error_message = NULL,
			finished_at = excluded.finished_at,
			imported_count = excluded.imported_count,
			skipped_count = excluded.skipped_count,
			conflict_count = excluded.conflict_count,
			updated_at = excluded.updated_at
	`, userID, now, result.ImportedCount, result.SkippedCount, len(result.Conflicts), now, now)
	if err != nil {
		return fmt.Errorf("failed to mark run succeeded: %w", err)
	}
	return nil
}

// MarkRunFailed sets the user's status to error with runErr's message.
func (r *RunRepository) MarkRunFailed(ctx context.Context, userID string, runErr error) error {
	now := r.clock().UTC()
	msg := "unknown error"
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, status, error_message, finished_at, created_at, updated_at)
		VALUES (?, 'error', ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = 'error',
			error_message = excluded.error_message,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at
	`, userID, msg, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return nil
}

// LastRun returns the user's latest run state, or nil if none was recorded.
func (r *RunRepository) LastRun(ctx context.Context, userID string) (*models.ImportRun, error) {
	var run models.ImportRun
	var errorMessage sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, status, error_message, started_at, finished_at, imported_count, skipped_count, conflict_count
		FROM sync_state
		WHERE user_id = ?
	`, userID).Scan(
		&run.UserID,
		&run.Status,
		&errorMessage,
		&startedAt,
		&finishedAt,
		&run.ImportedCount,
		&run.SkippedCount,
		&run.ConflictCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	run.ErrorMessage = stringPtr(errorMessage)
	run.StartedAt = timePtr(startedAt)
	run.FinishedAt = timePtr(finishedAt)

	return &run, nil
}

// ListRuns returns every user's latest run, ordered by user id.
func (r *RunRepository) ListRuns(ctx context.Context) ([]models.ImportRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, status, error_message, started_at, finished_at, imported_count, skipped_count, conflict_count
		FROM sync_state
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.ImportRun
	for rows.Next() {
		var run models.ImportRun
		var errorMessage sql.NullString
		var startedAt, finishedAt sql.NullTime

		if err := rows.Scan(&run.UserID, &run.Status, &errorMessage, &startedAt, &finishedAt,
			&run.ImportedCount, &run.SkippedCount, &run.ConflictCount); err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		run.ErrorMessage = stringPtr(errorMessage)
		run.StartedAt = timePtr(startedAt)
		run.FinishedAt = timePtr(finishedAt)
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync states: %w", err)
	}

	return runs, nil
}
