package models

import "time"

// ProfileUsage is the per-profile quota ledger entry. Queued minutes are
// reserved at admission and moved to used minutes when a job finalizes.
// A nil or negative maximum means unlimited.
type ProfileUsage struct {
	ProfileID              string
	ComputeMinutesQueued   int
	ComputeMinutesUsed     int
	ModelCount             int
	MaxTotalComputeMinutes *int
	MaxModelCount          *int
	UpdatedAt              time.Time
}

// MinutesUnlimited reports whether no compute-minute cap applies.
func (u *ProfileUsage) MinutesUnlimited() bool {
	return u.MaxTotalComputeMinutes == nil || *u.MaxTotalComputeMinutes < 0
}

// ModelsUnlimited reports whether no model-count cap applies.
func (u *ProfileUsage) ModelsUnlimited() bool {
	return u.MaxModelCount == nil || *u.MaxModelCount < 0
}

// AccountUsage is the account-wide ledger entry for one (year, month)
// period. Entries are created lazily the first time a period is touched
// and are never reset.
type AccountUsage struct {
	Year                 int
	Month                int
	ComputeMinutesQueued int
	ComputeMinutesUsed   int
	UpdatedAt            time.Time
}

// Leaderboard represents a race a model can be submitted to.
type Leaderboard struct {
	ID        string
	Name      string
	TrackName string
	OpensAt   time.Time
	ClosesAt  time.Time
}
