// Package ids issues the opaque identifiers used for models, jobs and
// profiles, and owns the kind encoding carried by job names.
package ids

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"rl-orchestrator/core/models"
)

// NewModelID returns a new collision-resistant model identifier.
func NewModelID() string {
	return "model-" + uuid.New().String()
}

// NewProfileID returns a new collision-resistant profile identifier.
func NewProfileID() string {
	return "profile-" + uuid.New().String()
}

// NewJobName returns a new job name for the given kind. The kind prefix is
// load-bearing: dispatch messages carry only the job name, and
// KindFromJobName recovers the kind on the consuming side.
func NewJobName(kind models.JobKind) string {
	return string(kind) + "-" + uuid.New().String()
}

// KindFromJobName recovers the job kind encoded in a job name. An unknown
// prefix means a malformed message or a producer bug and is returned as an
// error rather than guessed at.
func KindFromJobName(jobName string) (models.JobKind, error) {
	prefix, _, ok := strings.Cut(jobName, "-")
	if !ok {
		return "", errors.Errorf("job name %q carries no kind prefix", jobName)
	}
	switch kind := models.JobKind(prefix); kind {
	case models.JobKindTraining, models.JobKindEvaluation, models.JobKindSubmission:
		return kind, nil
	default:
		return "", errors.Errorf("job name %q has unknown kind prefix %q", jobName, prefix)
	}
}
