package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
)

// QuotaRepository handles database operations for the quota ledger:
// per-profile usage rows and per-period account usage rows.
type QuotaRepository struct {
	db *DB
}

// NewQuotaRepository creates a new quota repository
func NewQuotaRepository(db *DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// CreateProfileUsage inserts the ledger row for a new profile.
func (r *QuotaRepository) CreateProfileUsage(ctx context.Context, u *models.ProfileUsage) error {
	query := `
		INSERT INTO profile_usage (
			profile_id, compute_minutes_queued, compute_minutes_used,
			model_count, max_total_compute_minutes, max_model_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		u.ProfileID,
		u.ComputeMinutesQueued,
		u.ComputeMinutesUsed,
		u.ModelCount,
		u.MaxTotalComputeMinutes,
		u.MaxModelCount,
	)
	return errors.Wrapf(err, "create usage for profile %s", u.ProfileID)
}

// GetProfileUsage retrieves the ledger row for a profile.
func (r *QuotaRepository) GetProfileUsage(ctx context.Context, profileID string) (*models.ProfileUsage, error) {
	query := `
		SELECT profile_id, compute_minutes_queued, compute_minutes_used,
			model_count, max_total_compute_minutes, max_model_count, updated_at
		FROM profile_usage
		WHERE profile_id = $1
	`

	var u models.ProfileUsage
	var maxMinutes, maxModels sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, profileID).Scan(
		&u.ProfileID,
		&u.ComputeMinutesQueued,
		&u.ComputeMinutesUsed,
		&u.ModelCount,
		&maxMinutes,
		&maxModels,
		&u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(faults.ErrNotFound, "profile %s", profileID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get usage for profile %s", profileID)
	}

	if maxMinutes.Valid {
		v := int(maxMinutes.Int64)
		u.MaxTotalComputeMinutes = &v
	}
	if maxModels.Valid {
		v := int(maxModels.Int64)
		u.MaxModelCount = &v
	}
	return &u, nil
}

// ApplyProfileDelta adjusts a profile's counters. Queued minutes are
// clamped at zero in the database so concurrent finalizations cannot
// drive them negative.
func (r *QuotaRepository) ApplyProfileDelta(ctx context.Context, profileID string, queuedDelta, usedDelta, modelCountDelta int) error {
	query := `
		UPDATE profile_usage SET
			compute_minutes_queued = GREATEST(0, compute_minutes_queued + $2),
			compute_minutes_used = GREATEST(0, compute_minutes_used + $3),
			model_count = GREATEST(0, model_count + $4),
			updated_at = NOW()
		WHERE profile_id = $1
	`

	res, err := r.db.ExecContext(ctx, query, profileID, queuedDelta, usedDelta, modelCountDelta)
	if err != nil {
		return errors.Wrapf(err, "apply usage delta for profile %s", profileID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(faults.ErrNotFound, "profile %s", profileID)
	}
	return nil
}

// ResetProfileUsage zeroes a profile's used minutes and model count.
// Queued minutes belong to still-running jobs and are left alone.
func (r *QuotaRepository) ResetProfileUsage(ctx context.Context, profileID string) error {
	query := `
		UPDATE profile_usage SET
			compute_minutes_used = 0,
			model_count = 0,
			updated_at = NOW()
		WHERE profile_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, profileID)
	return errors.Wrapf(err, "reset usage for profile %s", profileID)
}

// ListProfileIDs returns one page of profile IDs ordered by ID. cursor is
// the last ID of the previous page, empty for the first page.
func (r *QuotaRepository) ListProfileIDs(ctx context.Context, limit int, cursor string) ([]string, string, error) {
	query := `
		SELECT profile_id
		FROM profile_usage
		WHERE profile_id > $1
		ORDER BY profile_id
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, cursor, limit)
	if err != nil {
		return nil, "", errors.Wrap(err, "list profiles")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, "", errors.Wrap(err, "scan profile id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, "", errors.Wrap(err, "iterate profiles")
	}

	nextCursor := ""
	if len(ids) == limit {
		nextCursor = ids[len(ids)-1]
	}
	return ids, nextCursor, nil
}

// GetOrCreateAccountUsage returns the account-wide ledger row for one
// (year, month) period, creating it lazily on first touch.
func (r *QuotaRepository) GetOrCreateAccountUsage(ctx context.Context, year, month int) (*models.AccountUsage, error) {
	insert := `
		INSERT INTO account_usage (year, month, compute_minutes_queued, compute_minutes_used, updated_at)
		VALUES ($1, $2, 0, 0, NOW())
		ON CONFLICT (year, month) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, year, month); err != nil {
		return nil, errors.Wrapf(err, "create account usage %d-%02d", year, month)
	}

	query := `
		SELECT year, month, compute_minutes_queued, compute_minutes_used, updated_at
		FROM account_usage
		WHERE year = $1 AND month = $2
	`

	var u models.AccountUsage
	err := r.db.QueryRowContext(ctx, query, year, month).Scan(
		&u.Year, &u.Month, &u.ComputeMinutesQueued, &u.ComputeMinutesUsed, &u.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "get account usage %d-%02d", year, month)
	}
	return &u, nil
}

// ApplyAccountDelta adjusts the account-wide counters for one period,
// clamped at zero like the profile counters.
func (r *QuotaRepository) ApplyAccountDelta(ctx context.Context, year, month, queuedDelta, usedDelta int) error {
	query := `
		UPDATE account_usage SET
			compute_minutes_queued = GREATEST(0, compute_minutes_queued + $3),
			compute_minutes_used = GREATEST(0, compute_minutes_used + $4),
			updated_at = NOW()
		WHERE year = $1 AND month = $2
	`

	_, err := r.db.ExecContext(ctx, query, year, month, queuedDelta, usedDelta)
	return errors.Wrapf(err, "apply account usage delta %d-%02d", year, month)
}
