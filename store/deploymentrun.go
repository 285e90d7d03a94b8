package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

const deploymentRunCols = `id, step_run_id, deployment_id, status, failure_reason, scheduled_at, released_at`

func scanDeploymentRun(row pgx.Row) (*model.DeploymentRun, error) {
	var d model.DeploymentRun
	err := row.Scan(&d.ID, &d.StepRunID, &d.DeploymentID, &d.Status, &d.FailureReason,
		&d.ScheduledAt, &d.ReleasedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (db *DB) InsertDeploymentRun(ctx context.Context, d *model.DeploymentRun) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO deployment_runs (id, step_run_id, deployment_id, status, failure_reason,
			scheduled_at, released_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.StepRunID, d.DeploymentID, d.Status, d.FailureReason, d.ScheduledAt, d.ReleasedAt,
	)
	return err
}

func (db *DB) GetDeploymentRun(ctx context.Context, id string) (*model.DeploymentRun, error) {
	return scanDeploymentRun(db.Pool.QueryRow(ctx,
		`SELECT `+deploymentRunCols+` FROM deployment_runs WHERE id = $1`, id))
}

func (db *DB) ListDeploymentRuns(ctx context.Context, stepRunID string) ([]model.DeploymentRun, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+deploymentRunCols+` FROM deployment_runs WHERE step_run_id = $1 ORDER BY scheduled_at`, stepRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.DeploymentRun
	for rows.Next() {
		d, err := scanDeploymentRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *d)
	}
	return runs, rows.Err()
}

func (db *DB) TransitionDeploymentRun(ctx context.Context, id string, fn func(*model.DeploymentRun) ([]model.Effect, error)) ([]model.Effect, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	d, err := scanDeploymentRun(tx.QueryRow(ctx,
		`SELECT `+deploymentRunCols+` FROM deployment_runs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	effects, err := fn(d)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE deployment_runs SET status = $1, failure_reason = $2, released_at = $3 WHERE id = $4`,
		d.Status, d.FailureReason, d.ReleasedAt, d.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effects, nil
}
