package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

const submissionCols = `id, platform_run_id, deployment_run_id, provider, channel, build_number,
	version, status, store_status, failure_reason, prepared_at, submitted_at, approved_at, rejected_at`

func scanSubmission(row pgx.Row) (*model.StoreSubmission, error) {
	var s model.StoreSubmission
	err := row.Scan(&s.ID, &s.PlatformRunID, &s.DeploymentRunID, &s.Provider, &s.Channel,
		&s.BuildNumber, &s.Version, &s.Status, &s.StoreStatus, &s.FailureReason,
		&s.PreparedAt, &s.SubmittedAt, &s.ApprovedAt, &s.RejectedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) InsertSubmission(ctx context.Context, s *model.StoreSubmission) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO store_submissions (id, platform_run_id, deployment_run_id, provider, channel,
			build_number, version, status, store_status, failure_reason,
			prepared_at, submitted_at, approved_at, rejected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.PlatformRunID, s.DeploymentRunID, s.Provider, s.Channel,
		s.BuildNumber, s.Version, s.Status, s.StoreStatus, s.FailureReason,
		s.PreparedAt, s.SubmittedAt, s.ApprovedAt, s.RejectedAt,
	)
	return err
}

func (db *DB) GetSubmission(ctx context.Context, id string) (*model.StoreSubmission, error) {
	return scanSubmission(db.Pool.QueryRow(ctx,
		`SELECT `+submissionCols+` FROM store_submissions WHERE id = $1`, id))
}

func (db *DB) ListSubmissions(ctx context.Context, platformRunID string) ([]model.StoreSubmission, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+submissionCols+` FROM store_submissions WHERE platform_run_id = $1 ORDER BY submitted_at NULLS LAST`,
		platformRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.StoreSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// SubmissionsInReview returns submissions waiting on a store answer,
// for the scheduler sweep re-driving lost polls.
func (db *DB) SubmissionsInReview(ctx context.Context) ([]model.StoreSubmission, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+submissionCols+` FROM store_submissions
		 WHERE status = 'submitted_for_review' ORDER BY submitted_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.StoreSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func (db *DB) TransitionSubmission(ctx context.Context, id string, fn func(*model.StoreSubmission) ([]model.Effect, error)) ([]model.Effect, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s, err := scanSubmission(tx.QueryRow(ctx,
		`SELECT `+submissionCols+` FROM store_submissions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	effects, err := fn(s)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE store_submissions SET status = $1, store_status = $2, failure_reason = $3,
			prepared_at = $4, submitted_at = $5, approved_at = $6, rejected_at = $7
		 WHERE id = $8`,
		s.Status, s.StoreStatus, s.FailureReason, s.PreparedAt, s.SubmittedAt, s.ApprovedAt, s.RejectedAt, s.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effects, nil
}
