package initializer

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rl-orchestrator/core/models"
	"rl-orchestrator/core/platform"
	"rl-orchestrator/core/repository"
	"rl-orchestrator/core/workflow"
)

type fakeModelStore struct {
	mu      sync.Mutex
	model   *models.Model
	updates []models.ModelStatus
}

func (f *fakeModelStore) Get(_ context.Context, id string) (*models.Model, error) {
	if f.model != nil && f.model.ID == id {
		return f.model, nil
	}
	return nil, errors.New("model not found")
}

func (f *fakeModelStore) Update(_ context.Context, _ string, upd repository.ModelUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if upd.Status != nil {
		f.updates = append(f.updates, *upd.Status)
	}
	return nil
}

type fakeJobStore struct {
	mu      sync.Mutex
	job     *models.Job
	updates []repository.JobUpdate
	failUpd error
}

func (f *fakeJobStore) GetByName(_ context.Context, name string) (*models.Job, error) {
	if f.job != nil && f.job.Name == name {
		return f.job, nil
	}
	return nil, errors.New("job not found")
}

func (f *fakeJobStore) Update(_ context.Context, _ string, upd repository.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpd != nil {
		return f.failUpd
	}
	f.updates = append(f.updates, upd)
	return nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetProfileUsage(_ context.Context, profileID string) (*models.ProfileUsage, error) {
	return &models.ProfileUsage{ProfileID: profileID}, nil
}

type fakeStore struct {
	mu             sync.Mutex
	writes         map[string][]byte
	deletedPrefix  string
	failDeletes    bool
	failWriteOnKey string
}

func newFakeStore() *fakeStore {
	return &fakeStore{writes: make(map[string][]byte)}
}

func (f *fakeStore) Write(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWriteOnKey != "" && key == f.failWriteOnKey {
		return errors.New("storage unavailable")
	}
	f.writes[key] = data
	return nil
}

func (f *fakeStore) DeletePrefix(_ context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeletes {
		return errors.New("delete failed")
	}
	f.deletedPrefix = prefix
	return nil
}

type fakeTelemetry struct{ err error }

func (f *fakeTelemetry) CreateChannel(_ context.Context, jobName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "channel/" + jobName, nil
}

type fakeExecutor struct {
	mu         sync.Mutex
	submission *platform.JobSubmission
	err        error
}

func (f *fakeExecutor) Submit(_ context.Context, sub platform.JobSubmission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.submission = &sub
	return "handle-" + sub.JobName, nil
}

func (f *fakeExecutor) Describe(context.Context, string) (platform.ExecutionState, error) {
	return platform.ExecutionState{}, errors.New("not used")
}

func (f *fakeExecutor) Stop(context.Context, string) error { return errors.New("not used") }

type fixture struct {
	init  *Initializer
	mdl   *fakeModelStore
	jobs  *fakeJobStore
	store *fakeStore
	exec  *fakeExecutor
	msg   platform.DispatchMessage
}

func newFixture(kind models.JobKind) *fixture {
	jobName := string(kind) + "-abc"
	job := &models.Job{
		Name:           jobName,
		Kind:           kind,
		ModelID:        "m1",
		ProfileID:      "p1",
		Status:         models.JobStatusQueued,
		TrackName:      "oval",
		RaceType:       "TIME_TRIAL",
		ConfigLocation: "models/m1/jobs/" + jobName + "/config.json",
		Termination:    models.TerminationConditions{MaxTimeInMinutes: 60},
	}
	mdl := &fakeModelStore{model: &models.Model{
		ID:             "m1",
		ProfileID:      "p1",
		Name:           "my-model",
		Status:         models.ModelStatusQueued,
		RewardFunction: "def reward_function(params):\n    return 1.0\n",
		ActionSpace:    `[{"steering_angle": 0, "speed": 1}]`,
		Sensors:        "FRONT_FACING_CAMERA",
	}}
	jobs := &fakeJobStore{job: job}
	store := newFakeStore()
	exec := &fakeExecutor{}
	return &fixture{
		init:  New(workflow.NewHelper(jobs), mdl, fakeProfiles{}, store, &fakeTelemetry{}, exec),
		mdl:   mdl,
		jobs:  jobs,
		store: store,
		exec:  exec,
		msg:   platform.DispatchMessage{JobName: jobName, ModelID: "m1", ProfileID: "p1"},
	}
}

func TestInitializeTrainingSuccess(t *testing.T) {
	f := newFixture(models.JobKindTraining)

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err)
	require.NoError(t, run.Err)

	assert.Equal(t, "handle-training-abc", run.Handle)
	assert.Equal(t, "channel/training-abc", run.ChannelHandle)

	require.Len(t, f.jobs.updates, 1)
	upd := f.jobs.updates[0]
	require.NotNil(t, upd.Status)
	assert.Equal(t, models.JobStatusInitializing, *upd.Status)
	assert.NotNil(t, upd.StartedAt)
	require.NotNil(t, upd.ExecutionHandle)
	assert.Equal(t, "handle-training-abc", *upd.ExecutionHandle)

	assert.Equal(t, []models.ModelStatus{models.ModelStatusTraining}, f.mdl.updates)

	assert.Contains(t, f.store.writes, "models/m1/jobs/training-abc/config.json")
	assert.Contains(t, f.store.writes, "models/m1/jobs/training-abc/model_metadata.yaml")
	assert.Equal(t, []byte(f.mdl.model.RewardFunction), f.store.writes["models/m1/jobs/training-abc/reward_function.py"])

	require.NotNil(t, f.exec.submission)
	assert.Equal(t, 60, f.exec.submission.MaxTimeInMinutes)
	assert.Equal(t, "oval", f.exec.submission.Environment["WORLD_NAME"])
}

func TestInitializeEvaluationClearsHeartbeat(t *testing.T) {
	f := newFixture(models.JobKindEvaluation)

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err)
	require.NoError(t, run.Err)

	assert.Equal(t, "models/m1/heartbeat", f.store.deletedPrefix)
	assert.NotContains(t, f.store.writes, "models/m1/jobs/evaluation-abc/model_metadata.yaml")
	assert.Equal(t, []models.ModelStatus{models.ModelStatusEvaluating}, f.mdl.updates)
}

func TestInitializeHeartbeatDeleteFailureIsNotFatal(t *testing.T) {
	f := newFixture(models.JobKindSubmission)
	f.store.failDeletes = true

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err)
	assert.NoError(t, run.Err)
	assert.Equal(t, "handle-submission-abc", run.Handle)
}

func TestInitializeSubmitFailurePersistsFailedTraining(t *testing.T) {
	f := newFixture(models.JobKindTraining)
	f.exec.err = errors.New("capacity exhausted")

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err, "step failures are captured on the run, not returned")
	require.Error(t, run.Err)

	require.Len(t, f.jobs.updates, 1)
	require.NotNil(t, f.jobs.updates[0].Status)
	assert.Equal(t, models.JobStatusFailed, *f.jobs.updates[0].Status)
	assert.Nil(t, f.jobs.updates[0].ExecutionHandle)
	assert.Equal(t, []models.ModelStatus{models.ModelStatusError}, f.mdl.updates)
}

func TestInitializeSubmitFailureReturnsEvaluatedModelToReady(t *testing.T) {
	f := newFixture(models.JobKindEvaluation)
	f.exec.err = errors.New("capacity exhausted")

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err)
	require.Error(t, run.Err)
	assert.Equal(t, []models.ModelStatus{models.ModelStatusReady}, f.mdl.updates)
}

func TestInitializeJobLoadFailureRevertsEvaluatedModelToReady(t *testing.T) {
	f := newFixture(models.JobKindEvaluation)
	f.jobs.job = nil

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err)
	require.Error(t, run.Err)

	require.Len(t, f.jobs.updates, 1)
	require.NotNil(t, f.jobs.updates[0].Status)
	assert.Equal(t, models.JobStatusFailed, *f.jobs.updates[0].Status)
	assert.Equal(t, []models.ModelStatus{models.ModelStatusReady}, f.mdl.updates,
		"the kind travels in the job name even when the record never loaded")
}

func TestInitializeJobLoadFailureLeavesTrainedModelBroken(t *testing.T) {
	f := newFixture(models.JobKindTraining)
	f.jobs.job = nil

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err)
	require.Error(t, run.Err)
	assert.Equal(t, []models.ModelStatus{models.ModelStatusError}, f.mdl.updates)
}

func TestInitializeConfigWriteFailureCaptured(t *testing.T) {
	f := newFixture(models.JobKindTraining)
	f.store.failWriteOnKey = "models/m1/jobs/training-abc/config.json"

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.NoError(t, err)
	require.Error(t, run.Err)
	assert.Nil(t, f.exec.submission, "submit must not run after a failed step")
}

func TestInitializePersistFailureReturned(t *testing.T) {
	f := newFixture(models.JobKindTraining)
	f.jobs.failUpd = errors.New("db down")

	run, err := f.init.Initialize(context.Background(), f.msg)
	require.Error(t, err)
	assert.Error(t, run.PersistErr)
}
