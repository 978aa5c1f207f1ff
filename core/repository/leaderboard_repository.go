package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
)

// LeaderboardRepository handles database operations for leaderboards
type LeaderboardRepository struct {
	db *DB
}

// NewLeaderboardRepository creates a new leaderboard repository
func NewLeaderboardRepository(db *DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// Create inserts a new leaderboard.
func (r *LeaderboardRepository) Create(ctx context.Context, lb *models.Leaderboard) error {
	query := `
		INSERT INTO leaderboards (id, name, track_name, opens_at, closes_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, lb.ID, lb.Name, lb.TrackName, lb.OpensAt, lb.ClosesAt)
	return errors.Wrapf(err, "create leaderboard %s", lb.ID)
}

// Get retrieves a leaderboard by ID.
func (r *LeaderboardRepository) Get(ctx context.Context, id string) (*models.Leaderboard, error) {
	query := `SELECT id, name, track_name, opens_at, closes_at FROM leaderboards WHERE id = $1`

	var lb models.Leaderboard
	err := r.db.QueryRowContext(ctx, query, id).Scan(&lb.ID, &lb.Name, &lb.TrackName, &lb.OpensAt, &lb.ClosesAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(faults.ErrNotFound, "leaderboard %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get leaderboard %s", id)
	}
	return &lb, nil
}

// Count returns the total number of leaderboards.
func (r *LeaderboardRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leaderboards`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count leaderboards")
	}
	return n, nil
}
