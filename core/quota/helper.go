// Package quota gates admission against per-profile compute quotas and
// reconciles reserved minutes against actual consumption when jobs finish.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
)

const (
	defaultResetBatchSize = 100
	resetFanOut           = 10
)

// LedgerStore is the slice of the quota repository the helper needs.
type LedgerStore interface {
	GetProfileUsage(ctx context.Context, profileID string) (*models.ProfileUsage, error)
	ApplyProfileDelta(ctx context.Context, profileID string, queuedDelta, usedDelta, modelCountDelta int) error
	ResetProfileUsage(ctx context.Context, profileID string) error
	ListProfileIDs(ctx context.Context, limit int, cursor string) ([]string, string, error)
	GetOrCreateAccountUsage(ctx context.Context, year, month int) (*models.AccountUsage, error)
	ApplyAccountDelta(ctx context.Context, year, month, queuedDelta, usedDelta int) error
}

// Helper owns every write to the quota ledger.
type Helper struct {
	store LedgerStore
	log   *logrus.Entry
	now   func() time.Time
}

// NewHelper creates a new quota helper
func NewHelper(store LedgerStore) *Helper {
	return &Helper{
		store: store,
		log:   logrus.WithField("component", "quota"),
		now:   time.Now,
	}
}

// LoadProfileComputeUsage returns the current counters for a profile.
func (h *Helper) LoadProfileComputeUsage(ctx context.Context, profileID string) (*models.ProfileUsage, error) {
	return h.store.GetProfileUsage(ctx, profileID)
}

// CheckAdmission rejects an admission that would exceed the profile's
// compute-minute quota, or its model-count quota when the admission
// creates a new model.
func (h *Helper) CheckAdmission(usage *models.ProfileUsage, requestedMinutes int, createsModel bool) error {
	if !usage.MinutesUnlimited() {
		max := *usage.MaxTotalComputeMinutes
		if usage.ComputeMinutesUsed+usage.ComputeMinutesQueued+requestedMinutes > max {
			return &faults.QuotaExceededError{
				ProfileID: usage.ProfileID,
				Reason: fmt.Sprintf("%d used + %d queued + %d requested exceeds the %d minute limit",
					usage.ComputeMinutesUsed, usage.ComputeMinutesQueued, requestedMinutes, max),
			}
		}
	}
	if createsModel && !usage.ModelsUnlimited() {
		if usage.ModelCount >= *usage.MaxModelCount {
			return &faults.QuotaExceededError{
				ProfileID: usage.ProfileID,
				Reason:    fmt.Sprintf("model count %d has reached the %d model limit", usage.ModelCount, *usage.MaxModelCount),
			}
		}
	}
	return nil
}

// Reserve records an admission on the ledger: queued minutes on the
// profile and on the current account period, plus the model count when a
// model is created alongside the job.
func (h *Helper) Reserve(ctx context.Context, profileID string, minutes int, createsModel bool) error {
	modelDelta := 0
	if createsModel {
		modelDelta = 1
	}
	if err := h.store.ApplyProfileDelta(ctx, profileID, minutes, 0, modelDelta); err != nil {
		return err
	}

	year, month := h.period()
	if _, err := h.store.GetOrCreateAccountUsage(ctx, year, month); err != nil {
		return err
	}
	return h.store.ApplyAccountDelta(ctx, year, month, minutes, 0)
}

// Release compensates a failed admission by undoing its reservation.
func (h *Helper) Release(ctx context.Context, profileID string, minutes int, createdModel bool) error {
	modelDelta := 0
	if createdModel {
		modelDelta = -1
	}
	if err := h.store.ApplyProfileDelta(ctx, profileID, -minutes, 0, modelDelta); err != nil {
		return err
	}

	year, month := h.period()
	return h.store.ApplyAccountDelta(ctx, year, month, -minutes, 0)
}

// Finalize converts a reservation into consumption once external
// execution ends. Queued minutes drop by the reservation, clamped so the
// counter never goes negative; used minutes grow by the lesser of the
// reservation and what the executor actually consumed, so a profile is
// never charged more than it reserved. The account-period counters mirror
// the same arithmetic.
func (h *Helper) Finalize(ctx context.Context, profileID string, minutesQueuedByUser, minutesUsedExternally int) error {
	usage, err := h.store.GetProfileUsage(ctx, profileID)
	if err != nil {
		return err
	}

	queuedDecrement := minutesQueuedByUser
	if usage.ComputeMinutesQueued < queuedDecrement {
		queuedDecrement = usage.ComputeMinutesQueued
	}
	usedIncrement := minutesQueuedByUser
	if minutesUsedExternally < usedIncrement {
		usedIncrement = minutesUsedExternally
	}

	if err := h.store.ApplyProfileDelta(ctx, profileID, -queuedDecrement, usedIncrement, 0); err != nil {
		return err
	}

	year, month := h.period()
	if _, err := h.store.GetOrCreateAccountUsage(ctx, year, month); err != nil {
		return err
	}
	return h.store.ApplyAccountDelta(ctx, year, month, -queuedDecrement, usedIncrement)
}

// ResetMonthlyQuotas zeroes used minutes and model counts for every
// profile, page by page with bounded concurrency. Queued minutes belong
// to in-flight jobs and are untouched. cursor resumes a previous
// interrupted run; the returned cursor is where a failed run stopped.
func (h *Helper) ResetMonthlyQuotas(ctx context.Context, batchSize int, cursor string) (string, error) {
	if batchSize <= 0 {
		batchSize = defaultResetBatchSize
	}

	for {
		ids, next, err := h.store.ListProfileIDs(ctx, batchSize, cursor)
		if err != nil {
			return cursor, err
		}
		if len(ids) == 0 {
			return "", nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(resetFanOut)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				return h.store.ResetProfileUsage(gctx, id)
			})
		}
		if err := g.Wait(); err != nil {
			return cursor, err
		}

		h.log.WithField("profiles", len(ids)).Debug("reset quota page")
		if next == "" {
			return "", nil
		}
		cursor = next
	}
}

func (h *Helper) period() (int, int) {
	t := h.now().UTC()
	return t.Year(), int(t.Month())
}
