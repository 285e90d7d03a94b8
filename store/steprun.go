package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

const stepRunCols = `id, platform_run_id, step_id, commit_id, status, ci_ref, ci_link,
	build_number, build_version, artifact_url, scheduled_at, updated_at`

func scanStepRun(row pgx.Row) (*model.StepRun, error) {
	var s model.StepRun
	err := row.Scan(&s.ID, &s.PlatformRunID, &s.StepID, &s.CommitID, &s.Status, &s.CIRef,
		&s.CILink, &s.BuildNumber, &s.BuildVersion, &s.ArtifactURL, &s.ScheduledAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertStepRun creates a run; the (step, commit) unique index makes a
// duplicate insert fail rather than fork a second run.
func (db *DB) InsertStepRun(ctx context.Context, s *model.StepRun) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO step_runs (id, platform_run_id, step_id, commit_id, status, ci_ref,
			ci_link, build_number, build_version, artifact_url, scheduled_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.PlatformRunID, s.StepID, s.CommitID, s.Status, s.CIRef,
		s.CILink, s.BuildNumber, s.BuildVersion, s.ArtifactURL, s.ScheduledAt, s.UpdatedAt,
	)
	return err
}

func (db *DB) GetStepRun(ctx context.Context, id string) (*model.StepRun, error) {
	return scanStepRun(db.Pool.QueryRow(ctx, `SELECT `+stepRunCols+` FROM step_runs WHERE id = $1`, id))
}

// FindStepRunByCIRef resolves a run from a CI webhook callback.
func (db *DB) FindStepRunByCIRef(ctx context.Context, ciRef string) (*model.StepRun, error) {
	s, err := scanStepRun(db.Pool.QueryRow(ctx,
		`SELECT `+stepRunCols+` FROM step_runs WHERE ci_ref = $1 ORDER BY scheduled_at DESC LIMIT 1`, ciRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func (db *DB) ListStepRuns(ctx context.Context, platformRunID string) ([]model.StepRun, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+stepRunCols+` FROM step_runs WHERE platform_run_id = $1 ORDER BY scheduled_at`, platformRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.StepRun
	for rows.Next() {
		s, err := scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *s)
	}
	return runs, rows.Err()
}

// InFlightStepRuns returns runs waiting on a CI workflow, for the
// scheduler sweep that re-drives lost polls.
func (db *DB) InFlightStepRuns(ctx context.Context) ([]model.StepRun, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+stepRunCols+` FROM step_runs
		 WHERE status IN ('ci_workflow_triggered', 'ci_workflow_started')
		 ORDER BY scheduled_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.StepRun
	for rows.Next() {
		s, err := scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *s)
	}
	return runs, rows.Err()
}

func (db *DB) TransitionStepRun(ctx context.Context, id string, fn func(*model.StepRun) ([]model.Effect, error)) ([]model.Effect, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s, err := scanStepRun(tx.QueryRow(ctx, `SELECT `+stepRunCols+` FROM step_runs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	effects, err := fn(s)
	if err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Now()
	_, err = tx.Exec(ctx,
		`UPDATE step_runs SET status = $1, ci_ref = $2, ci_link = $3, build_number = $4,
			build_version = $5, artifact_url = $6, updated_at = $7
		 WHERE id = $8`,
		s.Status, s.CIRef, s.CILink, s.BuildNumber, s.BuildVersion, s.ArtifactURL, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effects, nil
}
