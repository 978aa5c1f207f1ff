// Package monitoring runs the finalization path: a periodic sweep over
// live jobs that mirrors the external executor's state back onto the job
// and model records and reconciles the quota ledger when execution ends.
package monitoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"rl-orchestrator/core/models"
	"rl-orchestrator/core/platform"
	"rl-orchestrator/core/repository"
)

const sweepPageSize = 200

// terminalModelStatus maps a job kind and failure flag to the model
// status written at finalization. Initialized once, never mutated.
var terminalModelStatus = map[models.JobKind]map[bool]models.ModelStatus{
	models.JobKindTraining:   {false: models.ModelStatusReady, true: models.ModelStatusError},
	models.JobKindEvaluation: {false: models.ModelStatusReady, true: models.ModelStatusReady},
	models.JobKindSubmission: {false: models.ModelStatusReady, true: models.ModelStatusReady},
}

// JobStore is the slice of the job repository the monitor needs.
type JobStore interface {
	ListLive(ctx context.Context, limit int, cursor string) ([]*models.Job, string, error)
	Update(ctx context.Context, name string, upd repository.JobUpdate) error
}

// ModelStore is the slice of the model repository the monitor needs.
type ModelStore interface {
	Update(ctx context.Context, id string, upd repository.ModelUpdate) error
}

// QuotaReconciler converts a job's reservation into consumption.
type QuotaReconciler interface {
	Finalize(ctx context.Context, profileID string, minutesQueuedByUser, minutesUsedExternally int) error
}

// JobMonitor sweeps live jobs and finalizes the ones the executor reports
// as done.
type JobMonitor struct {
	jobs     JobStore
	mdl      ModelStore
	quota    QuotaReconciler
	executor platform.ExecutionService
	interval time.Duration
	log      *logrus.Entry
}

// NewJobMonitor creates a new job monitor
func NewJobMonitor(jobs JobStore, mdl ModelStore, quota QuotaReconciler, executor platform.ExecutionService, interval time.Duration) *JobMonitor {
	return &JobMonitor{
		jobs:     jobs,
		mdl:      mdl,
		quota:    quota,
		executor: executor,
		interval: interval,
		log:      logrus.WithField("component", "job-monitor"),
	}
}

// Start runs the sweep loop until the context is canceled.
func (m *JobMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep inspects every live job once, page by page so a backlog larger
// than one page does not starve the newest jobs. Per-job failures are
// logged and do not stop the sweep.
func (m *JobMonitor) Sweep(ctx context.Context) {
	cursor := ""
	for {
		jobs, next, err := m.jobs.ListLive(ctx, sweepPageSize, cursor)
		if err != nil {
			m.log.WithError(err).Error("failed to list live jobs")
			return
		}

		for _, job := range jobs {
			if err := m.inspect(ctx, job); err != nil {
				m.log.WithError(err).WithField("job_name", job.Name).Error("failed to reconcile job")
			}
		}

		if next == "" {
			return
		}
		cursor = next
	}
}

func (m *JobMonitor) inspect(ctx context.Context, job *models.Job) error {
	state, err := m.executor.Describe(ctx, job.Name)
	if err != nil {
		return err
	}

	switch {
	case state.Status == platform.ExecutionStatusInProgress && job.Status == models.JobStatusInitializing:
		status := models.JobStatusInProgress
		return m.jobs.Update(ctx, job.Name, repository.JobUpdate{Status: &status})

	case state.Status.Terminal():
		return m.finalize(ctx, job, state)
	}
	return nil
}

// finalize writes terminal statuses and reconciles the quota ledger. A
// stop-requested job that the executor reports as stopped still completed
// from the user's point of view.
func (m *JobMonitor) finalize(ctx context.Context, job *models.Job, state platform.ExecutionState) error {
	var jobStatus models.JobStatus
	failed := false
	switch state.Status {
	case platform.ExecutionStatusCompleted:
		jobStatus = models.JobStatusCompleted
	case platform.ExecutionStatusFailed:
		jobStatus = models.JobStatusFailed
		failed = true
	case platform.ExecutionStatusStopped:
		if job.Status == models.JobStatusStopping {
			jobStatus = models.JobStatusCompleted
		} else {
			jobStatus = models.JobStatusCanceled
		}
	}
	modelStatus := terminalModelStatus[job.Kind][failed]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.jobs.Update(gctx, job.Name, repository.JobUpdate{Status: &jobStatus})
	})
	g.Go(func() error {
		return m.mdl.Update(gctx, job.ModelID, repository.ModelUpdate{Status: &modelStatus})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.quota.Finalize(ctx, job.ProfileID, job.Termination.MaxTimeInMinutes, state.BillableMinutes); err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{
		"job_name":         job.Name,
		"job_status":       jobStatus,
		"billable_minutes": state.BillableMinutes,
		"failure_reason":   state.FailureReason,
	}).Info("finalized job")
	return nil
}
