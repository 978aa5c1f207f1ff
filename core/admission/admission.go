// Package admission is the entry path for new work: it reserves quota,
// creates the model and job records, and enqueues the dispatch message
// that the initializer later consumes. Reservation and record creation
// are not transactional, so every failure after the reservation
// compensates by releasing it.
package admission

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/ids"
	"rl-orchestrator/core/models"
	"rl-orchestrator/core/platform"
	"rl-orchestrator/core/repository"
)

// ModelStore is the slice of the model repository admission needs.
type ModelStore interface {
	Create(ctx context.Context, m *models.Model) error
	Get(ctx context.Context, id string) (*models.Model, error)
	Update(ctx context.Context, id string, upd repository.ModelUpdate) error
}

// JobStore is the slice of the job repository admission needs.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
}

// LeaderboardStore resolves leaderboard references on submissions.
type LeaderboardStore interface {
	Get(ctx context.Context, id string) (*models.Leaderboard, error)
}

// QuotaGate is the slice of the quota helper admission needs.
type QuotaGate interface {
	LoadProfileComputeUsage(ctx context.Context, profileID string) (*models.ProfileUsage, error)
	CheckAdmission(usage *models.ProfileUsage, requestedMinutes int, createsModel bool) error
	Reserve(ctx context.Context, profileID string, minutes int, createsModel bool) error
	Release(ctx context.Context, profileID string, minutes int, createdModel bool) error
}

// Service admits training, evaluation and submission work.
type Service struct {
	mdl   ModelStore
	jobs  JobStore
	board LeaderboardStore
	quota QuotaGate
	queue platform.DispatchQueue
	log   *logrus.Entry
}

// NewService creates a new admission service
func NewService(mdl ModelStore, jobs JobStore, board LeaderboardStore, quota QuotaGate, queue platform.DispatchQueue) *Service {
	return &Service{
		mdl:   mdl,
		jobs:  jobs,
		board: board,
		quota: quota,
		queue: queue,
		log:   logrus.WithField("component", "admission"),
	}
}

// RunSpec carries the per-run settings shared by all three job kinds.
type RunSpec struct {
	TrackName        string
	RaceType         string
	MaxTimeInMinutes int
	MaxLaps          int
}

func (s RunSpec) validate() error {
	if s.TrackName == "" {
		return faults.NewValidation("trackName", "must not be empty")
	}
	if s.MaxTimeInMinutes <= 0 {
		return faults.NewValidation("maxTimeInMinutes", "must be positive")
	}
	if s.MaxLaps < 0 {
		return faults.NewValidation("maxLaps", "must not be negative")
	}
	return nil
}

// CreateModelRequest admits a new model together with its training run.
type CreateModelRequest struct {
	ProfileID      string
	Name           string
	RewardFunction string
	ActionSpace    string
	Sensors        string
	ClonedFrom     *string
	Run            RunSpec
}

// CreateModel validates and admits a new model with its training job:
// quota is reserved first, then the model and job records are created and
// the dispatch message published.
func (s *Service) CreateModel(ctx context.Context, req CreateModelRequest) (*models.Model, *models.Job, error) {
	if req.ProfileID == "" {
		return nil, nil, faults.NewValidation("profileId", "must not be empty")
	}
	if req.Name == "" {
		return nil, nil, faults.NewValidation("name", "must not be empty")
	}
	if req.RewardFunction == "" {
		return nil, nil, faults.NewValidation("rewardFunction", "must not be empty")
	}
	if err := req.Run.validate(); err != nil {
		return nil, nil, err
	}

	usage, err := s.quota.LoadProfileComputeUsage(ctx, req.ProfileID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.quota.CheckAdmission(usage, req.Run.MaxTimeInMinutes, true); err != nil {
		return nil, nil, err
	}
	if err := s.quota.Reserve(ctx, req.ProfileID, req.Run.MaxTimeInMinutes, true); err != nil {
		return nil, nil, err
	}

	model := &models.Model{
		ID:             ids.NewModelID(),
		ProfileID:      req.ProfileID,
		Name:           req.Name,
		Status:         models.ModelStatusQueued,
		ClonedFrom:     req.ClonedFrom,
		RewardFunction: req.RewardFunction,
		ActionSpace:    req.ActionSpace,
		Sensors:        req.Sensors,
	}
	if err := s.mdl.Create(ctx, model); err != nil {
		s.compensate(ctx, req.ProfileID, req.Run.MaxTimeInMinutes, true, "")
		return nil, nil, err
	}

	job, err := s.admitJob(ctx, model, models.JobKindTraining, nil, req.Run)
	if err != nil {
		s.compensate(ctx, req.ProfileID, req.Run.MaxTimeInMinutes, true, model.ID)
		return nil, nil, err
	}
	return model, job, nil
}

// StartEvaluation admits an evaluation run for a READY model.
func (s *Service) StartEvaluation(ctx context.Context, modelID, profileID string, run RunSpec) (*models.Job, error) {
	return s.startModelRun(ctx, modelID, profileID, models.JobKindEvaluation, nil, run)
}

// SubmitToLeaderboard admits a race submission for a READY model.
func (s *Service) SubmitToLeaderboard(ctx context.Context, modelID, profileID, leaderboardID string, run RunSpec) (*models.Job, error) {
	if leaderboardID == "" {
		return nil, faults.NewValidation("leaderboardId", "must not be empty")
	}
	if _, err := s.board.Get(ctx, leaderboardID); err != nil {
		return nil, err
	}
	return s.startModelRun(ctx, modelID, profileID, models.JobKindSubmission, &leaderboardID, run)
}

func (s *Service) startModelRun(ctx context.Context, modelID, profileID string, kind models.JobKind, leaderboardID *string, run RunSpec) (*models.Job, error) {
	if err := run.validate(); err != nil {
		return nil, err
	}

	model, err := s.mdl.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if model.ProfileID != profileID {
		return nil, fmt.Errorf("model %s: %w", modelID, faults.ErrNotFound)
	}
	if model.Status != models.ModelStatusReady {
		return nil, &faults.StateConflictError{Resource: "model " + modelID, Status: string(model.Status), Op: string(kind) + " run"}
	}

	usage, err := s.quota.LoadProfileComputeUsage(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.CheckAdmission(usage, run.MaxTimeInMinutes, false); err != nil {
		return nil, err
	}
	if err := s.quota.Reserve(ctx, profileID, run.MaxTimeInMinutes, false); err != nil {
		return nil, err
	}

	if err := s.mdl.Update(ctx, modelID, repository.ModelUpdate{Status: statusPtr(models.ModelStatusQueued)}); err != nil {
		s.compensate(ctx, profileID, run.MaxTimeInMinutes, false, "")
		return nil, err
	}

	job, err := s.admitJob(ctx, model, kind, leaderboardID, run)
	if err != nil {
		s.compensate(ctx, profileID, run.MaxTimeInMinutes, false, "")
		// The model left READY for nothing; put it back.
		if uerr := s.mdl.Update(ctx, modelID, repository.ModelUpdate{Status: statusPtr(models.ModelStatusReady)}); uerr != nil {
			s.log.WithError(uerr).WithField("model_id", modelID).Error("failed to restore model status after admission failure")
		}
		return nil, err
	}
	return job, nil
}

func (s *Service) admitJob(ctx context.Context, model *models.Model, kind models.JobKind, leaderboardID *string, run RunSpec) (*models.Job, error) {
	jobName := ids.NewJobName(kind)
	prefix := fmt.Sprintf("models/%s/jobs/%s", model.ID, jobName)
	job := &models.Job{
		Name:          jobName,
		Kind:          kind,
		ModelID:       model.ID,
		ProfileID:     model.ProfileID,
		Status:        models.JobStatusQueued,
		LeaderboardID: leaderboardID,
		Termination: models.TerminationConditions{
			MaxTimeInMinutes: run.MaxTimeInMinutes,
			MaxLaps:          run.MaxLaps,
		},
		TrackName:       run.TrackName,
		RaceType:        run.RaceType,
		ConfigLocation:  prefix + "/environment.yaml",
		MetricsLocation: prefix + "/metrics.json",
		VideoLocation:   prefix + "/video",
		TraceLocation:   prefix + "/trace.log",
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	msg := platform.DispatchMessage{
		JobName:       jobName,
		ModelID:       model.ID,
		ProfileID:     model.ProfileID,
		LeaderboardID: leaderboardID,
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"job_name":   jobName,
		"model_id":   model.ID,
		"profile_id": model.ProfileID,
	}).Info("admitted job")
	return job, nil
}

// compensate undoes the quota reservation of a failed admission and marks
// an already-created model as broken. Compensation failures are logged,
// not returned: the caller already has the original error.
func (s *Service) compensate(ctx context.Context, profileID string, minutes int, createdModel bool, modelID string) {
	if err := s.quota.Release(ctx, profileID, minutes, createdModel); err != nil {
		s.log.WithError(err).WithField("profile_id", profileID).Error("failed to release quota reservation")
	}
	if modelID != "" {
		if err := s.mdl.Update(ctx, modelID, repository.ModelUpdate{Status: statusPtr(models.ModelStatusError)}); err != nil {
			s.log.WithError(err).WithField("model_id", modelID).Error("failed to mark model after admission failure")
		}
	}
}

func statusPtr(s models.ModelStatus) *models.ModelStatus { return &s }
