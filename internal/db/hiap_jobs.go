package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -----------------------------------------------------------------------------
// HIAP Job Methods
// -----------------------------------------------------------------------------

const jobColumns = `id, city_ids, is_bulk, status, error_kind, error_message, idempotency_key,
	created_at, started_at, completed_at`

// CreateJob inserts a new job record
func (db *DB) CreateJob(ctx context.Context, job *types.HiapJob) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO hiap_jobs (id, city_ids, is_bulk, status, error_kind, error_message,
		     idempotency_key, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.CityIDs, job.IsBulk, job.Status, job.ErrorKind, job.ErrorMessage,
		job.IdempotencyKey, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.HiapJob, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM hiap_jobs WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// FindActiveJob returns the oldest pending or running job that targets any of cityIDs.
func (db *DB) FindActiveJob(ctx context.Context, cityIDs []uuid.UUID) (*types.HiapJob, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+`
		 FROM hiap_jobs
		 WHERE status IN ('pending', 'running') AND city_ids && $1::uuid[]
		 ORDER BY created_at
		 LIMIT 1`, cityIDs))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active job: %w", err)
	}
	return job, nil
}

// ListJobsByStatus returns jobs in the given status, oldest first.
func (db *DB) ListJobsByStatus(ctx context.Context, status string) ([]types.HiapJob, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM hiap_jobs WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.HiapJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// StartJob moves a pending job to running. ok is false when the job was not pending.
func (db *DB) StartJob(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE hiap_jobs SET status = 'running', started_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, startedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to start job: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// FailJob moves a job from the given status to failed with an error kind and message.
func (db *DB) FailJob(ctx context.Context, id uuid.UUID, from, kind, message string, completedAt time.Time) (bool, error) {
	result, err := db.pool.Exec(ctx,
		`UPDATE hiap_jobs
		 SET status = 'failed', error_kind = $3, error_message = $4, completed_at = $5
		 WHERE id = $1 AND status = $2`,
		id, from, kind, message, completedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// CompleteJob stores the rankings of a running job and marks it succeeded in a single
// transaction. Nothing is written when the job is no longer running.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, rankings []types.ActionRanking, completedAt time.Time) (bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx,
		`UPDATE hiap_jobs SET status = 'succeeded', completed_at = $2
		 WHERE id = $1 AND status = 'running'`,
		id, completedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	for _, r := range rankings {
		actionsJSON, err := json.Marshal(r.Actions)
		if err != nil {
			return false, fmt.Errorf("failed to marshal ranking for city %s: %w", r.CityID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO action_rankings (job_id, city_id, actions) VALUES ($1, $2, $3)`,
			id, r.CityID, actionsJSON,
		); err != nil {
			return false, fmt.Errorf("failed to insert ranking for city %s: %w", r.CityID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit job completion: %w", err)
	}
	return true, nil
}

// ListRankings returns the stored rankings of a job ordered by city id.
func (db *DB) ListRankings(ctx context.Context, jobID uuid.UUID) ([]types.ActionRanking, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT job_id, city_id, actions FROM action_rankings WHERE job_id = $1 ORDER BY city_id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rankings: %w", err)
	}
	defer rows.Close()

	var rankings []types.ActionRanking
	for rows.Next() {
		var r types.ActionRanking
		var actionsJSON []byte
		if err := rows.Scan(&r.JobID, &r.CityID, &actionsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		if err := json.Unmarshal(actionsJSON, &r.Actions); err != nil {
			return nil, fmt.Errorf("failed to decode ranking for city %s: %w", r.CityID, err)
		}
		rankings = append(rankings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rankings: %w", err)
	}
	return rankings, nil
}

func scanJob(row pgx.Row) (*types.HiapJob, error) {
	var job types.HiapJob
	if err := row.Scan(&job.ID, &job.CityIDs, &job.IsBulk, &job.Status, &job.ErrorKind,
		&job.ErrorMessage, &job.IdempotencyKey, &job.CreatedAt, &job.StartedAt,
		&job.CompletedAt); err != nil {
		return nil, err
	}
	return &job, nil
}
