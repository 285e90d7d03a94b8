package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

const trainCols = `id, app_id, name, status, versioning_strategy, branching_strategy,
	working_branch, current_version, build_queue_enabled, build_queue_size,
	build_queue_wait_s, ci_provider, created_at, updated_at`

func scanTrain(row pgx.Row) (*model.Train, error) {
	var t model.Train
	var waitSeconds int64
	err := row.Scan(&t.ID, &t.AppID, &t.Name, &t.Status, &t.VersioningStrategy,
		&t.BranchingStrategy, &t.WorkingBranch, &t.CurrentVersion, &t.BuildQueueEnabled,
		&t.BuildQueueSize, &waitSeconds, &t.CIProvider, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.BuildQueueWait = time.Duration(waitSeconds) * time.Second
	return &t, nil
}

func (db *DB) InsertTrain(ctx context.Context, t *model.Train) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO trains (id, app_id, name, status, versioning_strategy, branching_strategy,
			working_branch, current_version, build_queue_enabled, build_queue_size,
			build_queue_wait_s, ci_provider, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.AppID, t.Name, t.Status, t.VersioningStrategy, t.BranchingStrategy,
		t.WorkingBranch, t.CurrentVersion, t.BuildQueueEnabled, t.BuildQueueSize,
		int64(t.BuildQueueWait/time.Second), t.CIProvider, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (db *DB) GetTrain(ctx context.Context, id string) (*model.Train, error) {
	return scanTrain(db.Pool.QueryRow(ctx, `SELECT `+trainCols+` FROM trains WHERE id = $1`, id))
}

func (db *DB) ListTrains(ctx context.Context) ([]model.Train, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+trainCols+` FROM trains ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trains []model.Train
	for rows.Next() {
		t, err := scanTrain(rows)
		if err != nil {
			return nil, err
		}
		trains = append(trains, *t)
	}
	return trains, rows.Err()
}

// FindTrainByBranch resolves the train whose working branch matches, for
// webhook routing.
func (db *DB) FindTrainByBranch(ctx context.Context, branch string) (*model.Train, error) {
	return scanTrain(db.Pool.QueryRow(ctx,
		`SELECT `+trainCols+` FROM trains WHERE working_branch = $1 AND status = 'active' LIMIT 1`, branch))
}

// UpdateTrain mutates a train under a row lock. fn runs with the fresh
// row; its mutations are written back before commit.
func (db *DB) UpdateTrain(ctx context.Context, id string, fn func(*model.Train) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	t, err := scanTrain(tx.QueryRow(ctx, `SELECT `+trainCols+` FROM trains WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`UPDATE trains SET status = $1, current_version = $2, working_branch = $3,
			build_queue_enabled = $4, build_queue_size = $5, build_queue_wait_s = $6,
			ci_provider = $7, updated_at = $8
		 WHERE id = $9`,
		t.Status, t.CurrentVersion, t.WorkingBranch, t.BuildQueueEnabled, t.BuildQueueSize,
		int64(t.BuildQueueWait/time.Second), t.CIProvider, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}
