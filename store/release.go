package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

// ErrNotFound is returned when the target row does not exist.
var ErrNotFound = pgx.ErrNoRows

const releaseCols = `id, train_id, branch_name, status, original_version, version,
	upcoming, scheduled_at, stopped_at, completed_at`

func scanRelease(row pgx.Row) (*model.Release, error) {
	var r model.Release
	err := row.Scan(&r.ID, &r.TrainID, &r.BranchName, &r.Status, &r.OriginalVersion,
		&r.Version, &r.Upcoming, &r.ScheduledAt, &r.StoppedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) InsertRelease(ctx context.Context, r *model.Release) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO releases (id, train_id, branch_name, status, original_version, version,
			upcoming, scheduled_at, stopped_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.TrainID, r.BranchName, r.Status, r.OriginalVersion, r.Version,
		r.Upcoming, r.ScheduledAt, r.StoppedAt, r.CompletedAt,
	)
	return err
}

func (db *DB) GetRelease(ctx context.Context, id string) (*model.Release, error) {
	return scanRelease(db.Pool.QueryRow(ctx, `SELECT `+releaseCols+` FROM releases WHERE id = $1`, id))
}

func (db *DB) ListReleases(ctx context.Context, trainID string, limit int) ([]model.Release, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+releaseCols+` FROM releases WHERE train_id = $1 ORDER BY scheduled_at DESC LIMIT $2`,
		trainID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []model.Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, *r)
	}
	return releases, rows.Err()
}

// ActiveRelease returns the train's pending (non-upcoming) release, or
// nil when there is none.
func (db *DB) ActiveRelease(ctx context.Context, trainID string) (*model.Release, error) {
	r, err := scanRelease(db.Pool.QueryRow(ctx,
		`SELECT `+releaseCols+` FROM releases
		 WHERE train_id = $1 AND upcoming = false
		   AND status NOT IN ('finished', 'stopped')
		 ORDER BY scheduled_at DESC LIMIT 1`, trainID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// UpcomingRelease returns the train's upcoming release, if any.
func (db *DB) UpcomingRelease(ctx context.Context, trainID string) (*model.Release, error) {
	r, err := scanRelease(db.Pool.QueryRow(ctx,
		`SELECT `+releaseCols+` FROM releases
		 WHERE train_id = $1 AND upcoming = true
		   AND status NOT IN ('finished', 'stopped')
		 ORDER BY scheduled_at DESC LIMIT 1`, trainID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// FindReleaseByBranch resolves a live release by its release branch,
// for webhook routing.
func (db *DB) FindReleaseByBranch(ctx context.Context, branch string) (*model.Release, error) {
	r, err := scanRelease(db.Pool.QueryRow(ctx,
		`SELECT `+releaseCols+` FROM releases
		 WHERE branch_name = $1 AND status NOT IN ('finished', 'stopped')
		 ORDER BY scheduled_at DESC LIMIT 1`, branch))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// TransitionRelease runs fn against the release row under an exclusive
// lock and persists the mutation in the same transaction. This is what
// serializes concurrent webhook and job writers on a single entity.
func (db *DB) TransitionRelease(ctx context.Context, id string, fn func(*model.Release) ([]model.Effect, error)) ([]model.Effect, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := scanRelease(tx.QueryRow(ctx, `SELECT `+releaseCols+` FROM releases WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	effects, err := fn(r)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE releases SET status = $1, version = $2, upcoming = $3, stopped_at = $4, completed_at = $5 WHERE id = $6`,
		r.Status, r.Version, r.Upcoming, r.StoppedAt, r.CompletedAt, r.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effects, nil
}
