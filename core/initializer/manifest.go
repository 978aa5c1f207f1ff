package initializer

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"rl-orchestrator/core/models"
)

// EnvironmentManifest is the YAML descriptor the external executor reads
// from shared storage to set up a run.
type EnvironmentManifest struct {
	Job     ManifestJob     `yaml:"job"`
	World   ManifestWorld   `yaml:"world"`
	Outputs ManifestOutputs `yaml:"outputs"`
}

// ManifestJob describes the run itself.
type ManifestJob struct {
	Name             string `yaml:"name"`
	Kind             string `yaml:"kind"`
	ModelID          string `yaml:"model_id"`
	LeaderboardID    string `yaml:"leaderboard_id,omitempty"`
	MaxTimeInMinutes int    `yaml:"max_time_in_minutes"`
	MaxLaps          int    `yaml:"max_laps,omitempty"`
}

// ManifestWorld describes the simulation environment.
type ManifestWorld struct {
	TrackName string `yaml:"track_name"`
	RaceType  string `yaml:"race_type,omitempty"`
}

// ManifestOutputs lists where the executor writes run artifacts.
type ManifestOutputs struct {
	Metrics string `yaml:"metrics"`
	Video   string `yaml:"video"`
	Trace   string `yaml:"trace"`
}

// ModelMetadata is the descriptor written alongside training runs so the
// executor knows the model's action space and sensors.
type ModelMetadata struct {
	ModelID     string `yaml:"model_id"`
	ActionSpace string `yaml:"action_space"`
	Sensors     string `yaml:"sensors"`
}

func buildEnvironmentManifest(job *models.Job) ([]byte, error) {
	m := EnvironmentManifest{
		Job: ManifestJob{
			Name:             job.Name,
			Kind:             string(job.Kind),
			ModelID:          job.ModelID,
			MaxTimeInMinutes: job.Termination.MaxTimeInMinutes,
			MaxLaps:          job.Termination.MaxLaps,
		},
		World: ManifestWorld{
			TrackName: job.TrackName,
			RaceType:  job.RaceType,
		},
		Outputs: ManifestOutputs{
			Metrics: job.MetricsLocation,
			Video:   job.VideoLocation,
			Trace:   job.TraceLocation,
		},
	}
	if job.LeaderboardID != nil {
		m.Job.LeaderboardID = *job.LeaderboardID
	}

	out, err := yaml.Marshal(&m)
	return out, errors.Wrap(err, "marshal environment manifest")
}

func buildModelMetadata(model *models.Model) ([]byte, error) {
	out, err := yaml.Marshal(&ModelMetadata{
		ModelID:     model.ID,
		ActionSpace: model.ActionSpace,
		Sensors:     model.Sensors,
	})
	return out, errors.Wrap(err, "marshal model metadata")
}
