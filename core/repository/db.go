package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// DB wraps the shared database handle used by all repositories.
type DB struct {
	*sql.DB
}

// NewDB opens a postgres connection and verifies it.
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}
	return &DB{DB: db}, nil
}

// InitSchema creates the orchestrator tables if they do not exist.
func (db *DB) InitSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			cloned_from TEXT,
			reward_function TEXT NOT NULL DEFAULT '',
			action_space TEXT NOT NULL DEFAULT '',
			sensors TEXT NOT NULL DEFAULT '',
			artifact_location TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_models_profile ON models (profile_id, id)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			model_id TEXT NOT NULL,
			profile_id TEXT NOT NULL,
			status TEXT NOT NULL,
			leaderboard_id TEXT,
			max_time_minutes INT NOT NULL DEFAULT 0,
			max_laps INT NOT NULL DEFAULT 0,
			track_name TEXT NOT NULL DEFAULT '',
			race_type TEXT NOT NULL DEFAULT '',
			execution_handle TEXT,
			started_at TIMESTAMPTZ,
			config_location TEXT NOT NULL DEFAULT '',
			metrics_location TEXT NOT NULL DEFAULT '',
			video_location TEXT NOT NULL DEFAULT '',
			trace_location TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_model_kind ON jobs (model_id, kind, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status)`,
		`CREATE TABLE IF NOT EXISTS profile_usage (
			profile_id TEXT PRIMARY KEY,
			compute_minutes_queued INT NOT NULL DEFAULT 0,
			compute_minutes_used INT NOT NULL DEFAULT 0,
			model_count INT NOT NULL DEFAULT 0,
			max_total_compute_minutes INT,
			max_model_count INT,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS account_usage (
			year INT NOT NULL,
			month INT NOT NULL,
			compute_minutes_queued INT NOT NULL DEFAULT 0,
			compute_minutes_used INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (year, month)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			track_name TEXT NOT NULL DEFAULT '',
			opens_at TIMESTAMPTZ NOT NULL,
			closes_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
