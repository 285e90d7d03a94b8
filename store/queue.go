package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"conductor/model"
)

const queueCols = `id, release_id, active, created_at, applied_at`

func scanQueue(row pgx.Row) (*model.BuildQueue, error) {
	var q model.BuildQueue
	if err := row.Scan(&q.ID, &q.ReleaseID, &q.Active, &q.CreatedAt, &q.AppliedAt); err != nil {
		return nil, err
	}
	return &q, nil
}

func (db *DB) InsertBuildQueue(ctx context.Context, q *model.BuildQueue) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO build_queues (id, release_id, active, created_at, applied_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		q.ID, q.ReleaseID, q.Active, q.CreatedAt, q.AppliedAt,
	)
	return err
}

func (db *DB) GetBuildQueue(ctx context.Context, id string) (*model.BuildQueue, error) {
	return scanQueue(db.Pool.QueryRow(ctx, `SELECT `+queueCols+` FROM build_queues WHERE id = $1`, id))
}

// ActiveBuildQueue returns the release's single active queue, or nil.
func (db *DB) ActiveBuildQueue(ctx context.Context, releaseID string) (*model.BuildQueue, error) {
	q, err := scanQueue(db.Pool.QueryRow(ctx,
		`SELECT `+queueCols+` FROM build_queues WHERE release_id = $1 AND active LIMIT 1`, releaseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func (db *DB) TransitionBuildQueue(ctx context.Context, id string, fn func(*model.BuildQueue) ([]model.Effect, error)) ([]model.Effect, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	q, err := scanQueue(tx.QueryRow(ctx, `SELECT `+queueCols+` FROM build_queues WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	effects, err := fn(q)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE build_queues SET active = $1, applied_at = $2 WHERE id = $3`,
		q.Active, q.AppliedAt, q.ID,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return effects, nil
}

func (db *DB) InsertCommit(ctx context.Context, c *model.Commit) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO commits (id, release_id, hash, author, message, branch, timestamp, build_queue_id, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.ReleaseID, c.Hash, c.Author, c.Message, c.Branch, c.Timestamp, c.BuildQueueID, c.AppliedAt,
	)
	return err
}

func (db *DB) GetCommit(ctx context.Context, id string) (*model.Commit, error) {
	return scanCommit(db.Pool.QueryRow(ctx,
		`SELECT id, release_id, hash, author, message, branch, timestamp, build_queue_id, applied_at
		 FROM commits WHERE id = $1`, id))
}

func scanCommit(row pgx.Row) (*model.Commit, error) {
	var c model.Commit
	err := row.Scan(&c.ID, &c.ReleaseID, &c.Hash, &c.Author, &c.Message, &c.Branch,
		&c.Timestamp, &c.BuildQueueID, &c.AppliedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// QueueCommits lists a queue's commits oldest first. A queue apply
// builds the newest one.
func (db *DB) QueueCommits(ctx context.Context, queueID string) ([]model.Commit, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, release_id, hash, author, message, branch, timestamp, build_queue_id, applied_at
		 FROM commits WHERE build_queue_id = $1 ORDER BY timestamp`, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommits(rows)
}

func (db *DB) CountQueueCommits(ctx context.Context, queueID string) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM commits WHERE build_queue_id = $1`, queueID).Scan(&n)
	return n, err
}

// LatestCommit returns the release's most recent applied commit, the
// one a platform run must have built to finish. Commits still batching
// in a build queue don't count until their queue applies.
func (db *DB) LatestCommit(ctx context.Context, releaseID string) (*model.Commit, error) {
	c, err := scanCommit(db.Pool.QueryRow(ctx,
		`SELECT id, release_id, hash, author, message, branch, timestamp, build_queue_id, applied_at
		 FROM commits WHERE release_id = $1 AND applied_at IS NOT NULL
		 ORDER BY timestamp DESC LIMIT 1`, releaseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (db *DB) MarkCommitApplied(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE commits SET applied_at = now() WHERE id = $1`, id)
	return err
}

func collectCommits(rows pgx.Rows) ([]model.Commit, error) {
	var commits []model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		commits = append(commits, *c)
	}
	return commits, rows.Err()
}
