package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

const platformRunCols = `id, release_id, platform, code_name, release_version, status,
	prod_started, scheduled_at, completed_at, stopped_at`

func scanPlatformRun(row pgx.Row) (*model.ReleasePlatformRun, error) {
	var p model.ReleasePlatformRun
	err := row.Scan(&p.ID, &p.ReleaseID, &p.Platform, &p.CodeName, &p.ReleaseVersion,
		&p.Status, &p.ProdStarted, &p.ScheduledAt, &p.CompletedAt, &p.StoppedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) InsertPlatformRun(ctx context.Context, p *model.ReleasePlatformRun) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO platform_runs (id, release_id, platform, code_name, release_version,
			status, prod_started, scheduled_at, completed_at, stopped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.ReleaseID, p.Platform, p.CodeName, p.ReleaseVersion,
		p.Status, p.ProdStarted, p.ScheduledAt, p.CompletedAt, p.StoppedAt,
	)
	return err
}

func (db *DB) GetPlatformRun(ctx context.Context, id string) (*model.ReleasePlatformRun, error) {
	return scanPlatformRun(db.Pool.QueryRow(ctx,
		`SELECT `+platformRunCols+` FROM platform_runs WHERE id = $1`, id))
}

func (db *DB) ListPlatformRuns(ctx context.Context, releaseID string) ([]model.ReleasePlatformRun, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+platformRunCols+` FROM platform_runs WHERE release_id = $1 ORDER BY platform`, releaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.ReleasePlatformRun
	for rows.Next() {
		p, err := scanPlatformRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *p)
	}
	return runs, rows.Err()
}

// LastFinishedPlatformRun returns the most recently finished run for a
// train's platform, the hotfix version base.
func (db *DB) LastFinishedPlatformRun(ctx context.Context, trainID string, platform model.Platform) (*model.ReleasePlatformRun, error) {
	p, err := scanPlatformRun(db.Pool.QueryRow(ctx,
		`SELECT pr.id, pr.release_id, pr.platform, pr.code_name, pr.release_version, pr.status,
			pr.prod_started, pr.scheduled_at, pr.completed_at, pr.stopped_at
		 FROM platform_runs pr
		 JOIN releases r ON r.id = pr.release_id
		 WHERE r.train_id = $1 AND pr.platform = $2 AND pr.status = 'finished'
		 ORDER BY pr.completed_at DESC LIMIT 1`, trainID, platform))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (db *DB) TransitionPlatformRun(ctx context.Context, id string, fn func(*model.ReleasePlatformRun) ([]model.Effect, error)) ([]model.Effect, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := scanPlatformRun(tx.QueryRow(ctx,
		`SELECT `+platformRunCols+` FROM platform_runs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	effects, err := fn(p)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE platform_runs SET status = $1, release_version = $2, prod_started = $3,
			completed_at = $4, stopped_at = $5
		 WHERE id = $6`,
		p.Status, p.ReleaseVersion, p.ProdStarted, p.CompletedAt, p.StoppedAt, p.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effects, nil
}
