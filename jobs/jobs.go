// Package jobs is a Postgres-backed durable job queue. Webhook handlers
// and coordinators enqueue; workers claim with SKIP LOCKED and call
// back into coordinator functions. A retryable failure re-enqueues with
// backoff instead of failing the job.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

type Job struct {
	ID          string
	Name        string
	Args        map[string]string
	Status      JobStatus
	RunAt       time.Time
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

type Queue struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewQueue(pool *pgxpool.Pool, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	return &Queue{pool: pool, maxAttempts: maxAttempts}
}

// Enqueue schedules a named job. A zero delay runs it as soon as a
// worker is free.
func (q *Queue) Enqueue(ctx context.Context, name string, args map[string]string, delay time.Duration) error {
	encoded, _ := json.Marshal(args)
	if encoded == nil {
		encoded = []byte("{}")
	}
	_, err := q.pool.Exec(ctx,
		`INSERT INTO jobs (id, name, args, status, run_at, max_attempts)
		 VALUES ($1, $2, $3, 'pending', $4, $5)`,
		uuid.New().String(), name, encoded, time.Now().Add(delay), q.maxAttempts,
	)
	return err
}

// Claim atomically takes one due pending job. SKIP LOCKED keeps
// competing workers from blocking on each other; nil means nothing is
// due.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	row := q.pool.QueryRow(ctx, `
		UPDATE jobs SET status = 'running', attempts = attempts + 1, started_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND run_at <= now()
			ORDER BY run_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, args, status, run_at, attempts, max_attempts, last_error, created_at, started_at, finished_at`)

	j, err := scanJob(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (q *Queue) MarkDone(ctx context.Context, id string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE jobs SET status = 'done', finished_at = now() WHERE id = $1`, id)
	return err
}

// Reschedule puts a retryable job back in the pending set after the
// backoff delay.
func (q *Queue) Reschedule(ctx context.Context, id string, delay time.Duration, cause string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending', run_at = now() + $1, last_error = $2 WHERE id = $3`,
		delay, cause, id)
	return err
}

func (q *Queue) MarkFailed(ctx context.Context, id, cause string) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', finished_at = now(), last_error = $1 WHERE id = $2`,
		cause, id)
	return err
}

// RequeueStuck returns running jobs older than the visibility timeout
// to the pending set, the crash-recovery sweep run at boot and by the
// scheduler.
func (q *Queue) RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := q.pool.Exec(ctx,
		`UPDATE jobs SET status = 'pending', run_at = now()
		 WHERE status = 'running' AND started_at < now() - $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var args []byte
	err := row.Scan(&j.ID, &j.Name, &args, &j.Status, &j.RunAt, &j.Attempts,
		&j.MaxAttempts, &j.LastError, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &j.Args); err != nil {
			return nil, fmt.Errorf("job %s args: %w", j.ID, err)
		}
	}
	return &j, nil
}
