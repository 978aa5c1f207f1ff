// Package workflow lets upper layers operate on "a job" without knowing
// its concrete kind. The kind travels encoded in the job name; the router
// recovers it and dispatches to the matching accessor.
package workflow

import (
	"context"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/ids"
	"rl-orchestrator/core/models"
	"rl-orchestrator/core/repository"
)

// Target identifies the job a dispatch message or stop request refers to.
type Target struct {
	JobName       string
	ModelID       string
	ProfileID     string
	LeaderboardID *string
}

// JobStore is the slice of the job repository the router needs.
type JobStore interface {
	GetByName(ctx context.Context, name string) (*models.Job, error)
	Update(ctx context.Context, name string, upd repository.JobUpdate) error
}

// Helper routes get/update calls for a target to the job record of the
// kind its name encodes.
type Helper struct {
	jobs JobStore
}

// NewHelper creates a new workflow helper
func NewHelper(jobs JobStore) *Helper {
	return &Helper{jobs: jobs}
}

// GetJob loads the job a target refers to. A job name with an unknown kind
// prefix is a producer bug and surfaces as an internal fault, not a retry.
func (h *Helper) GetJob(ctx context.Context, target Target) (*models.Job, error) {
	kind, err := ids.KindFromJobName(target.JobName)
	if err != nil {
		return nil, faults.NewInternal(err)
	}

	job, err := h.jobs.GetByName(ctx, target.JobName)
	if err != nil {
		return nil, err
	}
	if job.Kind != kind {
		return nil, faults.Internalf("job %s is recorded as %s but named as %s", job.Name, job.Kind, kind)
	}
	return job, nil
}

// UpdateJob applies a partial update to the job a target refers to.
func (h *Helper) UpdateJob(ctx context.Context, target Target, upd repository.JobUpdate) error {
	if _, err := ids.KindFromJobName(target.JobName); err != nil {
		return faults.NewInternal(err)
	}
	return h.jobs.Update(ctx, target.JobName, upd)
}

// IsTraining reports whether the loaded job is a training run.
func IsTraining(j *models.Job) bool { return j.Kind == models.JobKindTraining }

// IsEvaluation reports whether the loaded job is an evaluation run.
func IsEvaluation(j *models.Job) bool { return j.Kind == models.JobKindEvaluation }

// IsSubmission reports whether the loaded job is a leaderboard submission.
func IsSubmission(j *models.Job) bool { return j.Kind == models.JobKindSubmission }
