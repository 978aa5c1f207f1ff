// Package platform declares the narrow interfaces the orchestrator consumes
// from its infrastructure collaborators. Implementations live under
// providers/; tests substitute fakes.
package platform

import "context"

// DispatchMessage is the unit of work flowing through the dispatch queue.
// The producer sets the queue de-duplication key to JobName so repeated
// admission attempts for the same job do not double-dispatch.
type DispatchMessage struct {
	JobName       string  `json:"jobName"`
	ModelID       string  `json:"modelId"`
	ProfileID     string  `json:"profileId"`
	LeaderboardID *string `json:"leaderboardId,omitempty"`
}

// DispatchQueue publishes and consumes dispatch messages.
type DispatchQueue interface {
	Publish(ctx context.Context, msg DispatchMessage) error
	// Receive long-polls for the next message. A nil message with a nil
	// error means the poll elapsed without work.
	Receive(ctx context.Context) (*DispatchMessage, func(context.Context) error, error)
}

// ObjectStore persists job configuration artifacts in shared storage.
type ObjectStore interface {
	Write(ctx context.Context, location string, content []byte) error
	// DeletePrefix removes every object under the given location prefix.
	DeletePrefix(ctx context.Context, locationPrefix string) error
}

// TelemetryProvisioner stands up the per-job video/telemetry channel.
type TelemetryProvisioner interface {
	CreateChannel(ctx context.Context, name string) (string, error)
}

// ExecutionStatus is the coarse execution-service status the orchestrator
// branches on.
type ExecutionStatus string

const (
	ExecutionStatusNotFound   ExecutionStatus = "NOT_FOUND"
	ExecutionStatusPending    ExecutionStatus = "PENDING"
	ExecutionStatusInProgress ExecutionStatus = "IN_PROGRESS"
	ExecutionStatusStopping   ExecutionStatus = "STOPPING"
	ExecutionStatusCompleted  ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed     ExecutionStatus = "FAILED"
	ExecutionStatusStopped    ExecutionStatus = "STOPPED"
)

// Terminal reports whether the execution reached a final state.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusStopped:
		return true
	}
	return false
}

// Active reports whether the execution is visible and stoppable.
func (s ExecutionStatus) Active() bool {
	return s == ExecutionStatusInProgress || s == ExecutionStatusStopping
}

// ExecutionState is the describe result for one submitted job.
type ExecutionState struct {
	Status          ExecutionStatus
	BillableMinutes int
	FailureReason   string
}

// JobSubmission carries everything the execution service needs to start a
// job. Statuses observed afterwards come back through Describe, keyed by
// the same job name used at submission (the idempotency key).
type JobSubmission struct {
	JobName          string
	ConfigLocation   string
	OutputLocation   string
	MaxTimeInMinutes int
	Environment      map[string]string
}

// ExecutionService submits, inspects and stops externally-executed jobs.
// There is no cancel-before-start primitive: a queued job is stopped by
// polling Describe until it becomes visible, then calling Stop.
type ExecutionService interface {
	Submit(ctx context.Context, sub JobSubmission) (handle string, err error)
	Describe(ctx context.Context, jobName string) (ExecutionState, error)
	Stop(ctx context.Context, jobName string) error
}
