package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trains (
			id                  TEXT PRIMARY KEY,
			app_id              TEXT NOT NULL,
			name                TEXT NOT NULL,
			status              TEXT NOT NULL DEFAULT 'draft',
			versioning_strategy TEXT NOT NULL DEFAULT 'semver',
			branching_strategy  TEXT NOT NULL DEFAULT 'almost_trunk',
			working_branch      TEXT NOT NULL DEFAULT 'main',
			current_version     TEXT NOT NULL,
			build_queue_enabled BOOLEAN NOT NULL DEFAULT false,
			build_queue_size    INT NOT NULL DEFAULT 0,
			build_queue_wait_s  BIGINT NOT NULL DEFAULT 0,
			ci_provider         TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_trains_app ON trains(app_id);

		CREATE TABLE IF NOT EXISTS steps (
			id          TEXT PRIMARY KEY,
			train_id    TEXT NOT NULL REFERENCES trains(id),
			platform    TEXT NOT NULL,
			number      INT NOT NULL,
			name        TEXT NOT NULL,
			kind        TEXT NOT NULL DEFAULT 'review',
			ci_workflow TEXT NOT NULL,
			UNIQUE (train_id, platform, number)
		);

		CREATE TABLE IF NOT EXISTS deployments (
			id             TEXT PRIMARY KEY,
			step_id        TEXT NOT NULL REFERENCES steps(id),
			number         INT NOT NULL,
			integration    TEXT NOT NULL,
			channel        TEXT NOT NULL,
			is_production  BOOLEAN NOT NULL DEFAULT false,
			rollout_stages JSONB NOT NULL DEFAULT '[]',
			UNIQUE (step_id, number)
		);

		CREATE TABLE IF NOT EXISTS releases (
			id               TEXT PRIMARY KEY,
			train_id         TEXT NOT NULL REFERENCES trains(id),
			branch_name      TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'created',
			original_version TEXT NOT NULL,
			version          TEXT NOT NULL,
			upcoming         BOOLEAN NOT NULL DEFAULT false,
			scheduled_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			stopped_at       TIMESTAMPTZ,
			completed_at     TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_releases_train ON releases(train_id, scheduled_at DESC);

		CREATE TABLE IF NOT EXISTS platform_runs (
			id              TEXT PRIMARY KEY,
			release_id      TEXT NOT NULL REFERENCES releases(id),
			platform        TEXT NOT NULL,
			code_name       TEXT NOT NULL DEFAULT '',
			release_version TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'created',
			prod_started    BOOLEAN NOT NULL DEFAULT false,
			scheduled_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at    TIMESTAMPTZ,
			stopped_at      TIMESTAMPTZ,
			UNIQUE (release_id, platform)
		);

		CREATE TABLE IF NOT EXISTS step_runs (
			id              TEXT PRIMARY KEY,
			platform_run_id TEXT NOT NULL REFERENCES platform_runs(id),
			step_id         TEXT NOT NULL REFERENCES steps(id),
			commit_id       TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'on_track',
			ci_ref          TEXT NOT NULL DEFAULT '',
			ci_link         TEXT NOT NULL DEFAULT '',
			build_number    TEXT NOT NULL DEFAULT '',
			build_version   TEXT NOT NULL DEFAULT '',
			artifact_url    TEXT NOT NULL DEFAULT '',
			scheduled_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (step_id, commit_id)
		);
		CREATE INDEX IF NOT EXISTS idx_step_runs_platform_run ON step_runs(platform_run_id, scheduled_at);
		CREATE INDEX IF NOT EXISTS idx_step_runs_ci_ref ON step_runs(ci_ref) WHERE ci_ref <> '';

		CREATE TABLE IF NOT EXISTS deployment_runs (
			id             TEXT PRIMARY KEY,
			step_run_id    TEXT NOT NULL REFERENCES step_runs(id),
			deployment_id  TEXT NOT NULL REFERENCES deployments(id),
			status         TEXT NOT NULL DEFAULT 'created',
			failure_reason TEXT NOT NULL DEFAULT '',
			scheduled_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			released_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_deployment_runs_step_run ON deployment_runs(step_run_id, scheduled_at);

		CREATE TABLE IF NOT EXISTS build_queues (
			id         TEXT PRIMARY KEY,
			release_id TEXT NOT NULL REFERENCES releases(id),
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			applied_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_build_queues_active
			ON build_queues(release_id) WHERE active;

		CREATE TABLE IF NOT EXISTS commits (
			id             TEXT PRIMARY KEY,
			release_id     TEXT NOT NULL REFERENCES releases(id),
			hash           TEXT NOT NULL,
			author         TEXT NOT NULL DEFAULT '',
			message        TEXT NOT NULL DEFAULT '',
			branch         TEXT NOT NULL DEFAULT '',
			timestamp      TIMESTAMPTZ NOT NULL DEFAULT now(),
			build_queue_id TEXT,
			applied_at     TIMESTAMPTZ,
			UNIQUE (release_id, hash)
		);
		CREATE INDEX IF NOT EXISTS idx_commits_queue ON commits(build_queue_id) WHERE build_queue_id IS NOT NULL;

		CREATE TABLE IF NOT EXISTS store_submissions (
			id                TEXT PRIMARY KEY,
			platform_run_id   TEXT NOT NULL REFERENCES platform_runs(id),
			deployment_run_id TEXT NOT NULL REFERENCES deployment_runs(id),
			provider          TEXT NOT NULL,
			channel           TEXT NOT NULL DEFAULT '',
			build_number      TEXT NOT NULL DEFAULT '',
			version           TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL DEFAULT 'created',
			store_status      TEXT NOT NULL DEFAULT '',
			failure_reason    TEXT NOT NULL DEFAULT '',
			prepared_at       TIMESTAMPTZ,
			submitted_at      TIMESTAMPTZ,
			approved_at       TIMESTAMPTZ,
			rejected_at       TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_platform_run ON store_submissions(platform_run_id);

		CREATE TABLE IF NOT EXISTS store_rollouts (
			id                      TEXT PRIMARY KEY,
			submission_id           TEXT NOT NULL REFERENCES store_submissions(id),
			platform_run_id         TEXT NOT NULL REFERENCES platform_runs(id),
			provider                TEXT NOT NULL,
			config                  JSONB NOT NULL DEFAULT '[]',
			current_stage           INT NOT NULL DEFAULT -1,
			last_rollout_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			status                  TEXT NOT NULL DEFAULT 'created',
			pre_sync_status         TEXT NOT NULL DEFAULT '',
			created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at            TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS passport_events (
			id          TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			reason      TEXT NOT NULL,
			kind        TEXT NOT NULL DEFAULT 'notice',
			message     TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}',
			timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_passport_entity ON passport_events(entity_type, entity_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_passport_recent ON passport_events(timestamp DESC);

		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			args         JSONB NOT NULL DEFAULT '{}',
			status       TEXT NOT NULL DEFAULT 'pending',
			run_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			attempts     INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 8,
			last_error   TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at   TIMESTAMPTZ,
			finished_at  TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(run_at) WHERE status = 'pending';
		CREATE INDEX IF NOT EXISTS idx_jobs_running ON jobs(started_at) WHERE status = 'running';
	`)
	return err
}

// Healthy checks the database connection.
func (db *DB) Healthy(ctx context.Context) error {
	var n int
	return db.Pool.QueryRow(ctx, "SELECT 1").Scan(&n)
}
