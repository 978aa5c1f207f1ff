package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
)

// ModelRepository handles database operations for models
type ModelRepository struct {
	db *DB
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB) *ModelRepository {
	return &ModelRepository{db: db}
}

// Create inserts a new model record.
func (r *ModelRepository) Create(ctx context.Context, m *models.Model) error {
	query := `
		INSERT INTO models (
			id, profile_id, name, status, cloned_from, reward_function,
			action_space, sensors, artifact_location, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.ProfileID,
		m.Name,
		m.Status,
		m.ClonedFrom,
		m.RewardFunction,
		m.ActionSpace,
		m.Sensors,
		m.ArtifactLocation,
		now,
		now,
	)
	if err != nil {
		return errors.Wrapf(err, "create model %s", m.ID)
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// Get retrieves a model by ID.
func (r *ModelRepository) Get(ctx context.Context, id string) (*models.Model, error) {
	query := `
		SELECT id, profile_id, name, status, cloned_from, reward_function,
			action_space, sensors, artifact_location, created_at, updated_at
		FROM models
		WHERE id = $1
	`

	var m models.Model
	var clonedFrom sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.ProfileID,
		&m.Name,
		&m.Status,
		&clonedFrom,
		&m.RewardFunction,
		&m.ActionSpace,
		&m.Sensors,
		&m.ArtifactLocation,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(faults.ErrNotFound, "model %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get model %s", id)
	}

	if clonedFrom.Valid {
		m.ClonedFrom = &clonedFrom.String
	}
	return &m, nil
}

// ModelUpdate is a partial update for a model record. Nil fields are left
// untouched.
type ModelUpdate struct {
	Status           *models.ModelStatus
	ArtifactLocation *string
}

// Update applies a partial update to a model.
func (r *ModelRepository) Update(ctx context.Context, id string, upd ModelUpdate) error {
	query := `
		UPDATE models SET
			status = COALESCE($2, status),
			artifact_location = COALESCE($3, artifact_location),
			updated_at = NOW()
		WHERE id = $1
	`

	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	res, err := r.db.ExecContext(ctx, query, id, status, upd.ArtifactLocation)
	if err != nil {
		return errors.Wrapf(err, "update model %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(faults.ErrNotFound, "model %s", id)
	}
	return nil
}

// ListByProfile returns one page of a profile's models ordered by ID.
// cursor is the last model ID of the previous page, empty for the first
// page; the returned cursor is empty when the page is the last one.
func (r *ModelRepository) ListByProfile(ctx context.Context, profileID string, limit int, cursor string) ([]*models.Model, string, error) {
	query := `
		SELECT id, profile_id, name, status, artifact_location, created_at, updated_at
		FROM models
		WHERE profile_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, profileID, cursor, limit)
	if err != nil {
		return nil, "", errors.Wrapf(err, "list models for profile %s", profileID)
	}
	defer rows.Close()

	var page []*models.Model
	for rows.Next() {
		var m models.Model
		if err := rows.Scan(&m.ID, &m.ProfileID, &m.Name, &m.Status, &m.ArtifactLocation, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, "", errors.Wrap(err, "scan model")
		}
		page = append(page, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", errors.Wrap(err, "iterate models")
	}

	nextCursor := ""
	if len(page) == limit {
		nextCursor = page[len(page)-1].ID
	}
	return page, nextCursor, nil
}
