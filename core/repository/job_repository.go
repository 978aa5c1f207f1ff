package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
)

// JobRepository handles database operations for jobs of every kind.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	name, kind, model_id, profile_id, status, leaderboard_id,
	max_time_minutes, max_laps, track_name, race_type, execution_handle,
	started_at, config_location, metrics_location, video_location,
	trace_location, created_at, updated_at
`

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		j.Name,
		j.Kind,
		j.ModelID,
		j.ProfileID,
		j.Status,
		j.LeaderboardID,
		j.Termination.MaxTimeInMinutes,
		j.Termination.MaxLaps,
		j.TrackName,
		j.RaceType,
		j.ExecutionHandle,
		j.StartedAt,
		j.ConfigLocation,
		j.MetricsLocation,
		j.VideoLocation,
		j.TraceLocation,
		now,
		now,
	)
	if err != nil {
		return errors.Wrapf(err, "create job %s", j.Name)
	}

	j.CreatedAt = now
	j.UpdatedAt = now
	return nil
}

func scanJob(scan func(dest ...interface{}) error) (*models.Job, error) {
	var j models.Job
	var leaderboardID, executionHandle sql.NullString
	var startedAt sql.NullTime

	err := scan(
		&j.Name,
		&j.Kind,
		&j.ModelID,
		&j.ProfileID,
		&j.Status,
		&leaderboardID,
		&j.Termination.MaxTimeInMinutes,
		&j.Termination.MaxLaps,
		&j.TrackName,
		&j.RaceType,
		&executionHandle,
		&startedAt,
		&j.ConfigLocation,
		&j.MetricsLocation,
		&j.VideoLocation,
		&j.TraceLocation,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if leaderboardID.Valid {
		j.LeaderboardID = &leaderboardID.String
	}
	if executionHandle.Valid {
		j.ExecutionHandle = &executionHandle.String
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	return &j, nil
}

// GetByName retrieves a job by its unique name.
func (r *JobRepository) GetByName(ctx context.Context, name string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE name = $1`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, name).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(faults.ErrNotFound, "job %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get job %s", name)
	}
	return j, nil
}

// GetActiveByModel retrieves the model's most recent non-terminal job of
// the given kind.
func (r *JobRepository) GetActiveByModel(ctx context.Context, modelID string, kind models.JobKind) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE model_id = $1 AND kind = $2 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELED')
		ORDER BY created_at DESC
		LIMIT 1
	`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, modelID, kind).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(faults.ErrNotFound, "active %s job for model %s", kind, modelID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get active %s job for model %s", kind, modelID)
	}
	return j, nil
}

// JobUpdate is a partial update for a job record. Nil fields are left
// untouched.
type JobUpdate struct {
	Status          *models.JobStatus
	ExecutionHandle *string
	StartedAt       *time.Time
	MetricsLocation *string
	VideoLocation   *string
	TraceLocation   *string
}

// Update applies a partial update to a job.
func (r *JobRepository) Update(ctx context.Context, name string, upd JobUpdate) error {
	query := `
		UPDATE jobs SET
			status = COALESCE($2, status),
			execution_handle = COALESCE($3, execution_handle),
			started_at = COALESCE($4, started_at),
			metrics_location = COALESCE($5, metrics_location),
			video_location = COALESCE($6, video_location),
			trace_location = COALESCE($7, trace_location),
			updated_at = NOW()
		WHERE name = $1
	`

	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	res, err := r.db.ExecContext(ctx, query, name,
		status, upd.ExecutionHandle, upd.StartedAt,
		upd.MetricsLocation, upd.VideoLocation, upd.TraceLocation)
	if err != nil {
		return errors.Wrapf(err, "update job %s", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(faults.ErrNotFound, "job %s", name)
	}
	return nil
}

// ListLive returns one page of jobs in a non-terminal, post-queue status,
// for the finalize sweep. cursor is the last job name of the previous
// page; the returned cursor is empty once the page falls short of limit.
func (r *JobRepository) ListLive(ctx context.Context, limit int, cursor string) ([]*models.Job, string, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ('INITIALIZING', 'IN_PROGRESS', 'STOPPING') AND name > $2
		ORDER BY name
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit, cursor)
	if err != nil {
		return nil, "", errors.Wrap(err, "list live jobs")
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, "", errors.Wrap(err, "scan job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(jobs) == limit {
		next = jobs[len(jobs)-1].Name
	}
	return jobs, next, nil
}

// CountByModel returns the number of jobs of the given kind ever run for
// a model.
func (r *JobRepository) CountByModel(ctx context.Context, modelID string, kind models.JobKind) (int, error) {
	query := `SELECT COUNT(*) FROM jobs WHERE model_id = $1 AND kind = $2`

	var n int
	if err := r.db.QueryRowContext(ctx, query, modelID, kind).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count %s jobs for model %s", kind, modelID)
	}
	return n, nil
}
