package models

import "time"

// Job represents one execution attempt for a model. Training, evaluation
// and leaderboard-submission jobs share the same shape; Kind is the closed
// discriminator and LeaderboardID is only set for submissions.
type Job struct {
	Name            string // unique; doubles as external idempotency key and queue dedup key
	Kind            JobKind
	ModelID         string
	ProfileID       string
	Status          JobStatus
	LeaderboardID   *string
	Termination     TerminationConditions
	TrackName       string
	RaceType        string
	ExecutionHandle *string // handle returned by the external execution service
	StartedAt       *time.Time
	ConfigLocation  string
	MetricsLocation string
	VideoLocation   string
	TraceLocation   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// JobKind discriminates the three job kinds. The set is closed: code
// switching on it must handle every constant and treat anything else as
// an internal fault.
type JobKind string

const (
	JobKindTraining   JobKind = "training"
	JobKindEvaluation JobKind = "evaluation"
	JobKindSubmission JobKind = "submission"
)

// TerminationConditions bound an execution attempt.
type TerminationConditions struct {
	MaxTimeInMinutes int
	MaxLaps          int
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusQueued       JobStatus = "QUEUED"
	JobStatusInitializing JobStatus = "INITIALIZING"
	JobStatusInProgress   JobStatus = "IN_PROGRESS"
	JobStatusStopping     JobStatus = "STOPPING"
	JobStatusCompleted    JobStatus = "COMPLETED"
	JobStatusFailed       JobStatus = "FAILED"
	JobStatusCanceled     JobStatus = "CANCELED"
)

// Terminal reports whether the status is a terminal one.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}
