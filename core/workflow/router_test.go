package workflow

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
	"rl-orchestrator/core/repository"
)

type fakeJobStore struct {
	jobs    map[string]*models.Job
	updates map[string]repository.JobUpdate
}

func newFakeJobStore(jobs ...*models.Job) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*models.Job), updates: make(map[string]repository.JobUpdate)}
	for _, j := range jobs {
		s.jobs[j.Name] = j
	}
	return s
}

func (s *fakeJobStore) GetByName(_ context.Context, name string) (*models.Job, error) {
	j, ok := s.jobs[name]
	if !ok {
		return nil, faults.ErrNotFound
	}
	return j, nil
}

func (s *fakeJobStore) Update(_ context.Context, name string, upd repository.JobUpdate) error {
	if _, ok := s.jobs[name]; !ok {
		return faults.ErrNotFound
	}
	s.updates[name] = upd
	return nil
}

func TestGetJobRoutesByNamePrefix(t *testing.T) {
	job := &models.Job{Name: "evaluation-abc", Kind: models.JobKindEvaluation, ModelID: "m1"}
	h := NewHelper(newFakeJobStore(job))

	got, err := h.GetJob(context.Background(), Target{JobName: "evaluation-abc", ModelID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestGetJobUnknownPrefixIsInternal(t *testing.T) {
	h := NewHelper(newFakeJobStore())

	_, err := h.GetJob(context.Background(), Target{JobName: "mystery-abc"})
	var internal *faults.InternalError
	require.ErrorAs(t, err, &internal)
}

func TestGetJobKindMismatchIsInternal(t *testing.T) {
	// A record stored under a name whose prefix disagrees with its kind.
	job := &models.Job{Name: "training-abc", Kind: models.JobKindEvaluation}
	h := NewHelper(newFakeJobStore(job))

	_, err := h.GetJob(context.Background(), Target{JobName: "training-abc"})
	var internal *faults.InternalError
	require.ErrorAs(t, err, &internal)
}

func TestGetJobNotFoundPassesThrough(t *testing.T) {
	h := NewHelper(newFakeJobStore())

	_, err := h.GetJob(context.Background(), Target{JobName: "training-missing"})
	assert.True(t, errors.Is(err, faults.ErrNotFound))
}

func TestUpdateJob(t *testing.T) {
	store := newFakeJobStore(&models.Job{Name: "submission-abc", Kind: models.JobKindSubmission})
	h := NewHelper(store)

	status := models.JobStatusInitializing
	err := h.UpdateJob(context.Background(), Target{JobName: "submission-abc"}, repository.JobUpdate{Status: &status})
	require.NoError(t, err)
	require.Contains(t, store.updates, "submission-abc")
	assert.Equal(t, &status, store.updates["submission-abc"].Status)
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsTraining(&models.Job{Kind: models.JobKindTraining}))
	assert.True(t, IsEvaluation(&models.Job{Kind: models.JobKindEvaluation}))
	assert.True(t, IsSubmission(&models.Job{Kind: models.JobKindSubmission}))
	assert.False(t, IsTraining(&models.Job{Kind: models.JobKindEvaluation}))
}
