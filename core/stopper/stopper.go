// Package stopper executes stop and cancel requests. The protocol depends
// on the job's status: running jobs get a direct stop, queued jobs go
// through the poll-and-cancel race because the external executor has no
// cancel-before-start primitive.
package stopper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
	"rl-orchestrator/core/platform"
	"rl-orchestrator/core/repository"
)

// stoppableKinds maps a stoppable model status to the job kinds that may
// own the run, in priority order. At most one active job is expected; the
// first one found wins. Initialized once, never mutated.
var stoppableKinds = map[models.ModelStatus][]models.JobKind{
	models.ModelStatusEvaluating: {models.JobKindEvaluation, models.JobKindSubmission},
	models.ModelStatusQueued:     {models.JobKindEvaluation, models.JobKindSubmission, models.JobKindTraining},
	models.ModelStatusTraining:   {models.JobKindTraining},
}

// ModelStore is the slice of the model repository the coordinator needs.
type ModelStore interface {
	Get(ctx context.Context, id string) (*models.Model, error)
	Update(ctx context.Context, id string, upd repository.ModelUpdate) error
}

// JobStore is the slice of the job repository the coordinator needs.
type JobStore interface {
	GetActiveByModel(ctx context.Context, modelID string, kind models.JobKind) (*models.Job, error)
	Update(ctx context.Context, name string, upd repository.JobUpdate) error
}

// Coordinator finds the stoppable job for a model and executes the
// status-dependent stop protocol.
type Coordinator struct {
	mdl      ModelStore
	jobs     JobStore
	executor platform.ExecutionService
	log      *logrus.Entry

	// cancel-while-queued poll budget
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewCoordinator creates a new stop coordinator
func NewCoordinator(mdl ModelStore, jobs JobStore, executor platform.ExecutionService, pollInterval, pollTimeout time.Duration) *Coordinator {
	return &Coordinator{
		mdl:          mdl,
		jobs:         jobs,
		executor:     executor,
		log:          logrus.WithField("component", "stopper"),
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
	}
}

// Stop stops the model's current run. The stoppable job is derived from
// the model's status; the stop protocol from the job's.
func (c *Coordinator) Stop(ctx context.Context, modelID, profileID string) error {
	model, err := c.mdl.Get(ctx, modelID)
	if err != nil {
		return err
	}
	if model.ProfileID != profileID {
		return errors.Wrapf(faults.ErrNotFound, "model %s", modelID)
	}

	job, err := c.findStoppableJob(ctx, model)
	if err != nil {
		return err
	}

	log := c.log.WithFields(logrus.Fields{
		"model_id":   modelID,
		"job_name":   job.Name,
		"job_status": job.Status,
	})

	switch job.Status {
	case models.JobStatusInitializing:
		// The external system may not have a cancelable handle yet;
		// forcing a stop here risks a completed job with no valid output.
		return &faults.StateConflictError{Resource: "job " + job.Name, Status: string(job.Status), Op: "stop"}

	case models.JobStatusInProgress:
		if err := c.stopRunning(ctx, model, job); err != nil {
			return err
		}
		log.Info("stop requested")
		return nil

	case models.JobStatusQueued:
		if err := c.cancelQueued(ctx, model, job); err != nil {
			return err
		}
		log.Info("queued job canceled")
		return nil

	default:
		err := faults.Internalf("job %s found in status %s for stoppable model %s", job.Name, job.Status, model.Status)
		log.WithError(err).Error("job status inconsistent with stoppable model")
		return err
	}
}

// findStoppableJob locates the unique job a stop request refers to. The
// candidate kinds for the model's status are probed concurrently and the
// highest-priority one found wins. A stoppable model status with no
// candidate job is a violated invariant, not a user error.
func (c *Coordinator) findStoppableJob(ctx context.Context, model *models.Model) (*models.Job, error) {
	kinds, ok := stoppableKinds[model.Status]
	if !ok {
		return nil, &faults.StateConflictError{Resource: "model " + model.ID, Status: string(model.Status), Op: "stop"}
	}

	candidates := make([]*models.Job, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for idx, kind := range kinds {
		idx, kind := idx, kind
		g.Go(func() error {
			job, err := c.jobs.GetActiveByModel(gctx, model.ID, kind)
			if errors.Is(err, faults.ErrNotFound) {
				return nil
			}
			candidates[idx] = job
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, job := range candidates {
		if job != nil {
			return job, nil
		}
	}

	err := faults.Internalf("model %s is %s but has no active job of any candidate kind", model.ID, model.Status)
	c.log.WithFields(logrus.Fields{
		"model_id":     model.ID,
		"model_status": model.Status,
	}).Error("no candidate job for stoppable model")
	return nil, err
}

// stopRunning moves a running job and its model to STOPPING and asks the
// executor to stop. The terminal status is written later by the finalize
// sweep once the executor confirms. STOPPING is persisted before the stop
// call goes out; the sweep reads a Stopped execution as user-requested
// only when the job record already says so.
func (c *Coordinator) stopRunning(ctx context.Context, model *models.Model, job *models.Job) error {
	if err := c.persist(ctx, model.ID, job.Name, models.ModelStatusStopping, models.JobStatusStopping); err != nil {
		return err
	}
	return c.executor.Stop(ctx, job.Name)
}

// cancelQueued runs the poll-and-cancel protocol for a job that may not
// have reached the external system yet, then records the cancellation.
// The finalize sweep never runs for a canceled-while-queued job, so the
// terminal statuses are written here.
func (c *Coordinator) cancelQueued(ctx context.Context, model *models.Model, job *models.Job) error {
	if err := c.pollAndCancel(ctx, job.Name); err != nil {
		return err
	}

	modelStatus := models.ModelStatusReady
	if job.Kind == models.JobKindTraining {
		modelStatus = models.ModelStatusError
	}
	return c.persist(ctx, model.ID, job.Name, modelStatus, models.JobStatusCanceled)
}

// pollAndCancel polls the executor at a fixed interval until the job is
// either already terminal (no-op) or visible and stoppable (exactly one
// stop call). A job that never becomes visible within the budget is an
// operator problem, surfaced as the cancel-timeout error.
func (c *Coordinator) pollAndCancel(ctx context.Context, jobName string) error {
	deadline := time.NewTimer(c.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state, err := c.executor.Describe(ctx, jobName)
		if err != nil {
			return err
		}
		switch {
		case state.Status.Terminal():
			return nil
		case state.Status.Active(), state.Status == platform.ExecutionStatusPending:
			return c.executor.Stop(ctx, jobName)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			c.log.WithField("job_name", jobName).Error("cancel poll budget exhausted")
			return faults.ErrCancelTimeout
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) persist(ctx context.Context, modelID, jobName string, modelStatus models.ModelStatus, jobStatus models.JobStatus) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.jobs.Update(gctx, jobName, repository.JobUpdate{Status: &jobStatus})
	})
	g.Go(func() error {
		return c.mdl.Update(gctx, modelID, repository.ModelUpdate{Status: &modelStatus})
	})
	return g.Wait()
}
