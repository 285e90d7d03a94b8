package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

const rolloutCols = `id, submission_id, platform_run_id, provider, config, current_stage,
	last_rollout_percentage, status, pre_sync_status, created_at, completed_at`

func scanRollout(row pgx.Row) (*model.StoreRollout, error) {
	var r model.StoreRollout
	var config []byte
	err := row.Scan(&r.ID, &r.SubmissionID, &r.PlatformRunID, &r.Provider, &config,
		&r.CurrentStage, &r.LastRolloutPercentage, &r.Status, &r.PreSyncStatus,
		&r.CreatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &r.Config); err != nil {
			return nil, fmt.Errorf("rollout %s config: %w", r.ID, err)
		}
	}
	return &r, nil
}

func (db *DB) InsertRollout(ctx context.Context, r *model.StoreRollout) error {
	config, _ := json.Marshal(r.Config)
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO store_rollouts (id, submission_id, platform_run_id, provider, config,
			current_stage, last_rollout_percentage, status, pre_sync_status, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.SubmissionID, r.PlatformRunID, r.Provider, config,
		r.CurrentStage, r.LastRolloutPercentage, r.Status, r.PreSyncStatus, r.CreatedAt, r.CompletedAt,
	)
	return err
}

func (db *DB) GetRollout(ctx context.Context, id string) (*model.StoreRollout, error) {
	return scanRollout(db.Pool.QueryRow(ctx,
		`SELECT `+rolloutCols+` FROM store_rollouts WHERE id = $1`, id))
}

// SyncableRollouts returns live rollouts on providers whose state can
// drift out-of-band, for the periodic reconciliation sweep.
func (db *DB) SyncableRollouts(ctx context.Context) ([]model.StoreRollout, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+rolloutCols+` FROM store_rollouts
		 WHERE provider = 'app_store' AND status IN ('started', 'paused')
		 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollouts []model.StoreRollout
	for rows.Next() {
		r, err := scanRollout(rows)
		if err != nil {
			return nil, err
		}
		rollouts = append(rollouts, *r)
	}
	return rollouts, rows.Err()
}

// TransitionRollout serializes rollout mutations behind a row lock. A
// stage advance performs its provider round-trip inside fn, so two
// concurrent advances cannot both observe the same stage.
func (db *DB) TransitionRollout(ctx context.Context, id string, fn func(*model.StoreRollout) ([]model.Effect, error)) ([]model.Effect, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := scanRollout(tx.QueryRow(ctx,
		`SELECT `+rolloutCols+` FROM store_rollouts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	effects, err := fn(r)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE store_rollouts SET current_stage = $1, last_rollout_percentage = $2,
			status = $3, pre_sync_status = $4, completed_at = $5
		 WHERE id = $6`,
		r.CurrentStage, r.LastRolloutPercentage, r.Status, r.PreSyncStatus, r.CompletedAt, r.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effects, nil
}
