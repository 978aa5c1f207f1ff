// Package metrics aggregates system-, profile- and model-scoped counts
// across the record stores, paginating both axes and bounding the fan-out
// of downstream reads.
package metrics

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"rl-orchestrator/core/models"
)

const (
	// DefaultFanOut bounds concurrent per-model count reads.
	DefaultFanOut = 10

	pageSize = 100
)

// ProfileLister pages through all profile IDs.
type ProfileLister interface {
	ListProfileIDs(ctx context.Context, limit int, cursor string) ([]string, string, error)
}

// ModelLister pages through a profile's models.
type ModelLister interface {
	ListByProfile(ctx context.Context, profileID string, limit int, cursor string) ([]*models.Model, string, error)
}

// JobCounter counts a model's jobs of one kind.
type JobCounter interface {
	CountByModel(ctx context.Context, modelID string, kind models.JobKind) (int, error)
}

// LeaderboardCounter counts leaderboards.
type LeaderboardCounter interface {
	Count(ctx context.Context) (int, error)
}

// SystemCounts are the whole-system totals.
type SystemCounts struct {
	Profiles       int `json:"profiles"`
	Models         int `json:"models"`
	TrainingJobs   int `json:"trainingJobs"`
	EvaluationJobs int `json:"evaluationJobs"`
	Leaderboards   int `json:"leaderboards"`
}

// ProfileCounts are the totals for one profile's models.
type ProfileCounts struct {
	Models         int `json:"models"`
	TrainingJobs   int `json:"trainingJobs"`
	EvaluationJobs int `json:"evaluationJobs"`
}

// ModelCounts are the job totals for one model.
type ModelCounts struct {
	TrainingJobs   int `json:"trainingJobs"`
	EvaluationJobs int `json:"evaluationJobs"`
}

// Aggregator computes the three count scopes.
type Aggregator struct {
	profiles ProfileLister
	mdl      ModelLister
	jobs     JobCounter
	boards   LeaderboardCounter
	fanOut   int
}

// NewAggregator creates a new metrics aggregator. fanOut bounds the
// number of simultaneous job-count reads; zero or negative selects the
// default.
func NewAggregator(profiles ProfileLister, mdl ModelLister, jobs JobCounter, boards LeaderboardCounter, fanOut int) *Aggregator {
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	return &Aggregator{
		profiles: profiles,
		mdl:      mdl,
		jobs:     jobs,
		boards:   boards,
		fanOut:   fanOut,
	}
}

// SystemCounts walks every profile and sums their counts, plus the
// leaderboard total.
func (a *Aggregator) SystemCounts(ctx context.Context) (SystemCounts, error) {
	var out SystemCounts

	boards, err := a.boards.Count(ctx)
	if err != nil {
		return out, err
	}
	out.Leaderboards = boards

	cursor := ""
	for {
		ids, next, err := a.profiles.ListProfileIDs(ctx, pageSize, cursor)
		if err != nil {
			return out, err
		}
		for _, id := range ids {
			pc, err := a.ProfileCounts(ctx, id)
			if err != nil {
				return out, err
			}
			out.Profiles++
			out.Models += pc.Models
			out.TrainingJobs += pc.TrainingJobs
			out.EvaluationJobs += pc.EvaluationJobs
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// ProfileCounts sums job counts over one profile's models, page by page
// with bounded fan-out inside each page.
func (a *Aggregator) ProfileCounts(ctx context.Context, profileID string) (ProfileCounts, error) {
	var out ProfileCounts
	var mu sync.Mutex

	cursor := ""
	for {
		page, next, err := a.mdl.ListByProfile(ctx, profileID, pageSize, cursor)
		if err != nil {
			return out, err
		}
		out.Models += len(page)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.fanOut)
		for _, m := range page {
			m := m
			g.Go(func() error {
				mc, err := a.ModelCounts(gctx, m.ID)
				if err != nil {
					return err
				}
				mu.Lock()
				out.TrainingJobs += mc.TrainingJobs
				out.EvaluationJobs += mc.EvaluationJobs
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return out, err
		}

		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// ModelCounts counts one model's training and evaluation jobs.
func (a *Aggregator) ModelCounts(ctx context.Context, modelID string) (ModelCounts, error) {
	var out ModelCounts

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.jobs.CountByModel(gctx, modelID, models.JobKindTraining)
		out.TrainingJobs = n
		return err
	})
	g.Go(func() error {
		n, err := a.jobs.CountByModel(gctx, modelID, models.JobKindEvaluation)
		out.EvaluationJobs = n
		return err
	})
	if err := g.Wait(); err != nil {
		return ModelCounts{}, err
	}
	return out, nil
}
