package models

import "time"

// Model represents one user-created RL model under training or evaluation.
type Model struct {
	ID               string
	ProfileID        string
	Name             string
	Status           ModelStatus
	ClonedFrom       *string // source model ID when cloned
	RewardFunction   string  // reward function source, written out for training runs
	ActionSpace      string  // serialized action-space descriptor
	Sensors          string  // comma-separated sensor list
	ArtifactLocation string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ModelStatus represents the lifecycle status of a model
type ModelStatus string

const (
	ModelStatusQueued     ModelStatus = "QUEUED"
	ModelStatusTraining   ModelStatus = "TRAINING"
	ModelStatusEvaluating ModelStatus = "EVALUATING"
	ModelStatusStopping   ModelStatus = "STOPPING"
	ModelStatusImporting  ModelStatus = "IMPORTING"
	ModelStatusReady      ModelStatus = "READY"
	ModelStatusError      ModelStatus = "ERROR"
	ModelStatusDeleting   ModelStatus = "DELETING"
)

// Stoppable reports whether a stop request is meaningful for the
// model's current status.
func (s ModelStatus) Stoppable() bool {
	switch s {
	case ModelStatusQueued, ModelStatusTraining, ModelStatusEvaluating:
		return true
	}
	return false
}
