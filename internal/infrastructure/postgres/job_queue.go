package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/petition-hub/petition-hub/internal/domain/job"
)

// JobQueue implements job.Queue on the jobs table. Bound to a transaction, Enqueue
// becomes visible to workers only when that transaction commits.
type JobQueue struct {
	db DB
}

func NewJobQueue(db DB) *JobQueue {
	return &JobQueue{db: db}
}

func (q *JobQueue) Enqueue(ctx context.Context, j *job.Job) error {
	row := q.db.QueryRow(ctx, `
		INSERT INTO jobs (job_id, name, args, status, attempts, max_attempts, run_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, j.JobID, j.Name, j.Args, j.Status, j.Attempts, j.MaxAttempts, j.RunAt, j.CreatedAt)
	return translate(row.Scan(&j.ID))
}

// Claim leases due jobs. A RUNNING job whose lease expired is claimable again, which is
// how a crashed worker's jobs are redelivered.
func (q *JobQueue) Claim(ctx context.Context, limit int, lease time.Duration) ([]*job.Job, error) {
	rows, err := q.db.Query(ctx, `
		WITH due AS (
			SELECT id FROM jobs
			WHERE (status = 'PENDING' AND run_at <= NOW())
				OR (status = 'RUNNING' AND locked_until < NOW())
			ORDER BY run_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET status = 'RUNNING', attempts = j.attempts + 1, locked_until = NOW() + $2::interval
		FROM due
		WHERE j.id = due.id
		RETURNING j.id, j.job_id, j.name, j.args, j.status, j.attempts, j.max_attempts, j.run_at,
			j.locked_until, j.last_error, j.created_at, j.completed_at
	`, limit, lease)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (q *JobQueue) Touch(ctx context.Context, jobID uuid.UUID, lease time.Duration) error {
	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET locked_until = NOW() + $2::interval WHERE job_id = $1 AND status = 'RUNNING'
	`, jobID, lease)
	return translate(err)
}

func (q *JobQueue) Complete(ctx context.Context, jobID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = 'COMPLETED', completed_at = NOW(), locked_until = NULL WHERE job_id = $1
	`, jobID)
	return translate(err)
}

func (q *JobQueue) Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryAt *time.Time) error {
	if retryAt == nil {
		_, err := q.db.Exec(ctx, `
			UPDATE jobs SET status = 'DEAD', last_error = $2, locked_until = NULL WHERE job_id = $1
		`, jobID, errMsg)
		return translate(err)
	}
	_, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = 'PENDING', last_error = $2, run_at = $3, locked_until = NULL WHERE job_id = $1
	`, jobID, errMsg, *retryAt)
	return translate(err)
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var j job.Job
	var args []byte
	if err := row.Scan(&j.ID, &j.JobID, &j.Name, &args, &j.Status, &j.Attempts, &j.MaxAttempts, &j.RunAt,
		&j.LockedUntil, &j.LastError, &j.CreatedAt, &j.CompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, translate(err)
	}
	j.Args = args
	return &j, nil
}
