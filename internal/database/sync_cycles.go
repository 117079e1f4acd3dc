package database

import (
	"context"
	"fmt"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"
)

var _ domain.CycleRecorder = (*DB)(nil)

func (db *DB) RecordSyncCycle(ctx context.Context, cycle *models.SyncCycle) error {
	query := `INSERT INTO sync_cycles (cycle_id, attempt, snapshot, written, already_satisfied,
                  failed_sub_batches, remaining, result, last_error, started_at, finished_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		cycle.CycleID,
		cycle.Attempt,
		cycle.Snapshot,
		cycle.Written,
		cycle.AlreadySatisfied,
		cycle.FailedSubBatches,
		cycle.Remaining,
		cycle.Result,
		cycle.LastError,
		cycle.StartedAt,
		cycle.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync cycle: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	cycle.ID = id
	return nil
}

// GetRecentSyncCycles returns up to limit cycles, newest first.
func (db *DB) GetRecentSyncCycles(ctx context.Context, limit int) ([]models.SyncCycle, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, cycle_id, attempt, snapshot, written, already_satisfied, failed_sub_batches,
                     remaining, result, last_error, started_at, finished_at
              FROM sync_cycles ORDER BY id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cycles: %w", err)
	}
	defer rows.Close()

	var cycles []models.SyncCycle
	for rows.Next() {
		var c models.SyncCycle
		err := rows.Scan(
			&c.ID, &c.CycleID, &c.Attempt, &c.Snapshot, &c.Written, &c.AlreadySatisfied,
			&c.FailedSubBatches, &c.Remaining, &c.Result, &c.LastError, &c.StartedAt, &c.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}
