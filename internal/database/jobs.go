package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadsync/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

const jobColumns = `id, lane, trace_id, tenant_id, payload, status, retry_count,
       last_error, created_at, claimed_at, processed_at, next_retry_at`

// CreateJob persists a new pending job and fills its id.
func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `INSERT INTO jobs (lane, trace_id, tenant_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	res, err := db.ExecContext(ctx, query,
		job.Lane, job.TraceID, job.TenantID, job.Payload,
		job.Status, job.RetryCount, job.LastError, now, job.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("job insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now
	return nil
}

func scanJobs(ctx context.Context, db *DB, query string, args ...any) ([]models.Job, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(
			&j.ID, &j.Lane, &j.TraceID, &j.TenantID, &j.Payload, &j.Status,
			&j.RetryCount, &j.LastError, &j.CreatedAt, &j.ClaimedAt, &j.ProcessedAt, &j.NextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// GetDueJobs returns pending/retry jobs for a lane whose retry time has come.
func (db *DB) GetDueJobs(ctx context.Context, lane string, limit int) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
              WHERE lane = ? AND status IN ('pending', 'retry')
                AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	jobs, err := scanJobs(ctx, db, query, lane, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("get due jobs: %w", err)
	}
	return jobs, nil
}

func (db *DB) GetJobByID(ctx context.Context, id int64) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	jobs, err := scanJobs(ctx, db, query, id)
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	if len(jobs) == 0 {
		return nil, ErrJobNotFound
	}
	return &jobs[0], nil
}

func (db *DB) GetJobsByTrace(ctx context.Context, traceID string) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE trace_id = ? ORDER BY id`
	jobs, err := scanJobs(ctx, db, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("get jobs by trace: %w", err)
	}
	return jobs, nil
}

// GetFailedJobs lists the dead-letter set, newest first.
func (db *DB) GetFailedJobs(ctx context.Context) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'failed' ORDER BY created_at DESC`
	jobs, err := scanJobs(ctx, db, query)
	if err != nil {
		return nil, fmt.Errorf("get failed jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob atomically takes ownership of a due pending/retry job. False means
// another worker already owns it, it is finished, or it is not due yet.
func (db *DB) ClaimJob(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE jobs SET status = 'processing', claimed_at = ?
              WHERE id = ? AND status IN ('pending', 'retry')
                AND (next_retry_at IS NULL OR next_retry_at <= ?)`
	now := time.Now()
	res, err := db.ExecContext(ctx, query, now, id, now)
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	return n == 1, nil
}

// ReclaimStale returns jobs a crashed worker left claimed back to pending so
// the poll redelivers them.
func (db *DB) ReclaimStale(ctx context.Context, before time.Time) (int64, error) {
	query := `UPDATE jobs SET status = 'pending', claimed_at = NULL
              WHERE status = 'processing' AND claimed_at <= ?`
	res, err := db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return n, nil
}

// UpdateJobStatus advances a job through its lifecycle. Retries bump the
// counter; terminal states stamp processed_at.
func (db *DB) UpdateJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := time.Now()

	switch status {
	case models.JobRetry:
		query = `UPDATE jobs SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, errMsg, nextRetryAt, id}
	case models.JobCompleted, models.JobFailed:
		query = `UPDATE jobs SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, errMsg, nextRetryAt, &now, id}
	default:
		query = `UPDATE jobs SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, errMsg, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update job %d status: %w", id, err)
	}
	return nil
}

// RequeueJob puts a failed job back on the queue with a fresh attempt budget.
// Used by the operator dead-letter retry endpoints.
func (db *DB) RequeueJob(ctx context.Context, id int64) error {
	query := `UPDATE jobs SET status = 'pending', retry_count = 0, last_error = NULL,
              next_retry_at = NULL, processed_at = NULL
              WHERE id = ? AND status = 'failed'`
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue job %d: %w", id, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
