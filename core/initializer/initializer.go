// Package initializer consumes dispatch messages and walks a queued job
// through external startup: configuration written to shared storage, a
// telemetry channel provisioned, the job submitted to the executor, and
// the resulting statuses persisted. Step failures are captured on the run
// context and routed to the persistence step so a job never sticks
// mid-transition.
package initializer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rl-orchestrator/core/ids"
	"rl-orchestrator/core/models"
	"rl-orchestrator/core/platform"
	"rl-orchestrator/core/repository"
	"rl-orchestrator/core/workflow"
)

// initialModelStatus maps a job kind to the model status set when its
// execution starts. Initialized once, never mutated.
var initialModelStatus = map[models.JobKind]models.ModelStatus{
	models.JobKindTraining:   models.ModelStatusTraining,
	models.JobKindEvaluation: models.ModelStatusEvaluating,
	models.JobKindSubmission: models.ModelStatusEvaluating,
}

// failureModelStatus maps a job kind to the model status set when
// initialization fails. A failed training leaves the model broken; a
// failed evaluation or submission returns it to READY.
var failureModelStatus = map[models.JobKind]models.ModelStatus{
	models.JobKindTraining:   models.ModelStatusError,
	models.JobKindEvaluation: models.ModelStatusReady,
	models.JobKindSubmission: models.ModelStatusReady,
}

// ModelStore is the slice of the model repository the initializer needs.
type ModelStore interface {
	Get(ctx context.Context, id string) (*models.Model, error)
	Update(ctx context.Context, id string, upd repository.ModelUpdate) error
}

// ProfileStore loads the profile's quota record for the run context.
type ProfileStore interface {
	GetProfileUsage(ctx context.Context, profileID string) (*models.ProfileUsage, error)
}

// Run is the context accumulated across initialization steps. Err holds
// the first step failure; PersistErr holds a failure of the final
// persistence step, the one failure mode with no automatic recovery.
type Run struct {
	Target        workflow.Target
	Job           *models.Job
	Model         *models.Model
	Usage         *models.ProfileUsage
	ChannelHandle string
	Handle        string
	Err           error
	PersistErr    error
}

// Initializer executes the startup state machine for one dispatch message.
type Initializer struct {
	router    *workflow.Helper
	mdl       ModelStore
	profiles  ProfileStore
	store     platform.ObjectStore
	telemetry platform.TelemetryProvisioner
	executor  platform.ExecutionService
	log       *logrus.Entry
	now       func() time.Time
}

// New creates a new initializer
func New(router *workflow.Helper, mdl ModelStore, profiles ProfileStore, store platform.ObjectStore,
	telemetry platform.TelemetryProvisioner, executor platform.ExecutionService) *Initializer {
	return &Initializer{
		router:    router,
		mdl:       mdl,
		profiles:  profiles,
		store:     store,
		telemetry: telemetry,
		executor:  executor,
		log:       logrus.WithField("component", "initializer"),
		now:       time.Now,
	}
}

// Initialize runs the startup steps for one dispatch message. The
// returned error is non-nil only when the final persistence step failed;
// step failures are recorded on the run and persisted as FAILED/ERROR
// statuses instead.
func (i *Initializer) Initialize(ctx context.Context, msg platform.DispatchMessage) (*Run, error) {
	run := &Run{
		Target: workflow.Target{
			JobName:       msg.JobName,
			ModelID:       msg.ModelID,
			ProfileID:     msg.ProfileID,
			LeaderboardID: msg.LeaderboardID,
		},
	}
	log := i.log.WithFields(logrus.Fields{
		"job_name":   msg.JobName,
		"model_id":   msg.ModelID,
		"profile_id": msg.ProfileID,
	})

	run.Err = i.prepare(ctx, run, log)
	if run.Err != nil {
		log.WithError(run.Err).Warn("job initialization failed")
	}

	if err := i.persist(ctx, run); err != nil {
		run.PersistErr = err
		log.WithError(err).Error("failed to persist job initialization outcome")
		return run, err
	}
	return run, nil
}

// prepare covers every failable step before persistence.
func (i *Initializer) prepare(ctx context.Context, run *Run, log *logrus.Entry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		job, err := i.router.GetJob(gctx, run.Target)
		run.Job = job
		return err
	})
	g.Go(func() error {
		model, err := i.mdl.Get(gctx, run.Target.ModelID)
		run.Model = model
		return err
	})
	g.Go(func() error {
		usage, err := i.profiles.GetProfileUsage(gctx, run.Target.ProfileID)
		run.Usage = usage
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	channel, err := i.telemetry.CreateChannel(ctx, run.Job.Name)
	if err != nil {
		return err
	}
	run.ChannelHandle = channel

	manifest, err := buildEnvironmentManifest(run.Job)
	if err != nil {
		return err
	}
	if err := i.store.Write(ctx, run.Job.ConfigLocation, manifest); err != nil {
		return err
	}

	switch run.Job.Kind {
	case models.JobKindTraining:
		metadata, err := buildModelMetadata(run.Model)
		if err != nil {
			return err
		}
		prefix := jobPrefix(run.Job)
		if err := i.store.Write(ctx, prefix+"/model_metadata.yaml", metadata); err != nil {
			return err
		}
		if err := i.store.Write(ctx, prefix+"/reward_function.py", []byte(run.Model.RewardFunction)); err != nil {
			return err
		}
	case models.JobKindEvaluation, models.JobKindSubmission:
		// A previous attempt may have left a heartbeat marker behind.
		marker := fmt.Sprintf("models/%s/heartbeat", run.Model.ID)
		if err := i.store.DeletePrefix(ctx, marker); err != nil {
			log.WithError(err).Warn("failed to delete stale heartbeat marker")
		}
	}

	handle, err := i.executor.Submit(ctx, platform.JobSubmission{
		JobName:          run.Job.Name,
		ConfigLocation:   run.Job.ConfigLocation,
		OutputLocation:   jobPrefix(run.Job),
		MaxTimeInMinutes: run.Job.Termination.MaxTimeInMinutes,
		Environment: map[string]string{
			"WORLD_NAME":    run.Job.TrackName,
			"JOB_KIND":      string(run.Job.Kind),
			"VIDEO_CHANNEL": run.ChannelHandle,
		},
	})
	if err != nil {
		return err
	}
	run.Handle = handle
	return nil
}

// persist is step 6: both records are written concurrently, on success
// and on captured failure alike. The job record may have never loaded;
// the name prefix still carries the kind the failure statuses depend on.
func (i *Initializer) persist(ctx context.Context, run *Run) error {
	kind := models.JobKindTraining
	if run.Job != nil {
		kind = run.Job.Kind
	} else if k, err := ids.KindFromJobName(run.Target.JobName); err == nil {
		kind = k
	}

	var modelStatus models.ModelStatus
	jobUpd := repository.JobUpdate{}
	if run.Err == nil {
		modelStatus = initialModelStatus[kind]
		now := i.now()
		status := models.JobStatusInitializing
		jobUpd.Status = &status
		jobUpd.StartedAt = &now
		jobUpd.ExecutionHandle = &run.Handle
		if run.ChannelHandle != "" {
			jobUpd.VideoLocation = &run.ChannelHandle
		}
	} else {
		modelStatus = failureModelStatus[kind]
		status := models.JobStatusFailed
		jobUpd.Status = &status
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return i.router.UpdateJob(gctx, run.Target, jobUpd)
	})
	g.Go(func() error {
		return i.mdl.Update(gctx, run.Target.ModelID, repository.ModelUpdate{Status: &modelStatus})
	})
	return g.Wait()
}

func jobPrefix(j *models.Job) string {
	return fmt.Sprintf("models/%s/jobs/%s", j.ModelID, j.Name)
}
