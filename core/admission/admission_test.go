package admission

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rl-orchestrator/core/faults"
	"rl-orchestrator/core/models"
	"rl-orchestrator/core/platform"
	"rl-orchestrator/core/repository"
)

type fakeModels struct {
	records    map[string]*models.Model
	created    []*models.Model
	updates    []models.ModelStatus
	failCreate error
}

func newFakeModelStore(ms ...*models.Model) *fakeModels {
	f := &fakeModels{records: make(map[string]*models.Model)}
	for _, m := range ms {
		f.records[m.ID] = m
	}
	return f
}

func (f *fakeModels) Create(_ context.Context, m *models.Model) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	f.created = append(f.created, m)
	f.records[m.ID] = m
	return nil
}

func (f *fakeModels) Get(_ context.Context, id string) (*models.Model, error) {
	if m, ok := f.records[id]; ok {
		return m, nil
	}
	return nil, faults.ErrNotFound
}

func (f *fakeModels) Update(_ context.Context, _ string, upd repository.ModelUpdate) error {
	if upd.Status != nil {
		f.updates = append(f.updates, *upd.Status)
	}
	return nil
}

type fakeJobs struct {
	created []*models.Job
	fail    error
}

func (f *fakeJobs) Create(_ context.Context, j *models.Job) error {
	if f.fail != nil {
		return f.fail
	}
	f.created = append(f.created, j)
	return nil
}

type fakeBoards struct{ boards map[string]*models.Leaderboard }

func (f *fakeBoards) Get(_ context.Context, id string) (*models.Leaderboard, error) {
	if b, ok := f.boards[id]; ok {
		return b, nil
	}
	return nil, faults.ErrNotFound
}

type fakeQuota struct {
	usage      *models.ProfileUsage
	admitErr   error
	reserved   int
	released   int
	reserveErr error
}

func (f *fakeQuota) LoadProfileComputeUsage(_ context.Context, profileID string) (*models.ProfileUsage, error) {
	if f.usage != nil {
		return f.usage, nil
	}
	return &models.ProfileUsage{ProfileID: profileID}, nil
}

func (f *fakeQuota) CheckAdmission(*models.ProfileUsage, int, bool) error { return f.admitErr }

func (f *fakeQuota) Reserve(_ context.Context, _ string, minutes int, _ bool) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reserved += minutes
	return nil
}

func (f *fakeQuota) Release(_ context.Context, _ string, minutes int, _ bool) error {
	f.released += minutes
	return nil
}

type fakeQueue struct {
	published []platform.DispatchMessage
	fail      error
}

func (f *fakeQueue) Publish(_ context.Context, msg platform.DispatchMessage) error {
	if f.fail != nil {
		return f.fail
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeQueue) Receive(context.Context) (*platform.DispatchMessage, func(context.Context) error, error) {
	return nil, nil, errors.New("not used")
}

type fixture struct {
	svc    *Service
	mdl    *fakeModels
	jobs   *fakeJobs
	boards *fakeBoards
	quota  *fakeQuota
	queue  *fakeQueue
}

func newFixture(ms ...*models.Model) *fixture {
	f := &fixture{
		mdl:    newFakeModelStore(ms...),
		jobs:   &fakeJobs{},
		boards: &fakeBoards{boards: map[string]*models.Leaderboard{"lb-1": {ID: "lb-1", Name: "summit"}}},
		quota:  &fakeQuota{},
		queue:  &fakeQueue{},
	}
	f.svc = NewService(f.mdl, f.jobs, f.boards, f.quota, f.queue)
	return f
}

func validRun() RunSpec {
	return RunSpec{TrackName: "oval", RaceType: "TIME_TRIAL", MaxTimeInMinutes: 60, MaxLaps: 3}
}

func validCreate() CreateModelRequest {
	return CreateModelRequest{
		ProfileID:      "p1",
		Name:           "my-model",
		RewardFunction: "def reward_function(params):\n    return 1.0\n",
		ActionSpace:    `[{"steering_angle": 0, "speed": 1}]`,
		Sensors:        "FRONT_FACING_CAMERA",
		Run:            validRun(),
	}
}

func TestCreateModelAdmitsTrainingJob(t *testing.T) {
	f := newFixture()

	model, job, err := f.svc.CreateModel(context.Background(), validCreate())
	require.NoError(t, err)

	assert.Equal(t, models.ModelStatusQueued, model.Status)
	assert.Equal(t, models.JobKindTraining, job.Kind)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, model.ID, job.ModelID)
	assert.Equal(t, 60, job.Termination.MaxTimeInMinutes)
	assert.Contains(t, job.ConfigLocation, "models/"+model.ID+"/jobs/"+job.Name)

	assert.Equal(t, 60, f.quota.reserved)
	require.Len(t, f.queue.published, 1)
	assert.Equal(t, job.Name, f.queue.published[0].JobName)
	assert.Equal(t, model.ID, f.queue.published[0].ModelID)
}

func TestCreateModelValidation(t *testing.T) {
	f := newFixture()
	cases := map[string]func(*CreateModelRequest){
		"empty profile": func(r *CreateModelRequest) { r.ProfileID = "" },
		"empty name":    func(r *CreateModelRequest) { r.Name = "" },
		"empty reward":  func(r *CreateModelRequest) { r.RewardFunction = "" },
		"empty track":   func(r *CreateModelRequest) { r.Run.TrackName = "" },
		"zero minutes":  func(r *CreateModelRequest) { r.Run.MaxTimeInMinutes = 0 },
		"negative laps": func(r *CreateModelRequest) { r.Run.MaxLaps = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validCreate()
			mutate(&req)
			_, _, err := f.svc.CreateModel(context.Background(), req)
			var verr *faults.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Zero(t, f.quota.reserved, "rejected requests must not touch quota")
		})
	}
}

func TestCreateModelQuotaRejection(t *testing.T) {
	f := newFixture()
	f.quota.admitErr = &faults.QuotaExceededError{ProfileID: "p1", Reason: "compute minutes exhausted"}

	_, _, err := f.svc.CreateModel(context.Background(), validCreate())

	var qerr *faults.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Zero(t, f.quota.reserved)
	assert.Empty(t, f.mdl.created)
}

func TestCreateModelPublishFailureCompensates(t *testing.T) {
	f := newFixture()
	f.queue.fail = errors.New("queue unavailable")

	_, _, err := f.svc.CreateModel(context.Background(), validCreate())
	require.Error(t, err)

	assert.Equal(t, 60, f.quota.released, "reservation must be released on failure")
	assert.Equal(t, []models.ModelStatus{models.ModelStatusError}, f.mdl.updates,
		"the already-created model is marked broken")
}

func TestCreateModelStoreFailureCompensates(t *testing.T) {
	f := newFixture()
	f.mdl.failCreate = errors.New("db down")

	_, _, err := f.svc.CreateModel(context.Background(), validCreate())
	require.Error(t, err)
	assert.Equal(t, 60, f.quota.released)
	assert.Empty(t, f.mdl.updates, "no model record exists to mark")
}

func TestStartEvaluationRequiresReadyModel(t *testing.T) {
	f := newFixture(&models.Model{ID: "m1", ProfileID: "p1", Status: models.ModelStatusTraining})

	_, err := f.svc.StartEvaluation(context.Background(), "m1", "p1", validRun())

	var conflict *faults.StateConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestStartEvaluationOwnershipHidesModel(t *testing.T) {
	f := newFixture(&models.Model{ID: "m1", ProfileID: "p1", Status: models.ModelStatusReady})

	_, err := f.svc.StartEvaluation(context.Background(), "m1", "p2", validRun())
	assert.True(t, errors.Is(err, faults.ErrNotFound))
}

func TestStartEvaluationQueuesModel(t *testing.T) {
	f := newFixture(&models.Model{ID: "m1", ProfileID: "p1", Status: models.ModelStatusReady})

	job, err := f.svc.StartEvaluation(context.Background(), "m1", "p1", validRun())
	require.NoError(t, err)

	assert.Equal(t, models.JobKindEvaluation, job.Kind)
	assert.Nil(t, job.LeaderboardID)
	assert.Equal(t, []models.ModelStatus{models.ModelStatusQueued}, f.mdl.updates)
	assert.Equal(t, 60, f.quota.reserved)
}

func TestStartEvaluationPublishFailureRestoresModel(t *testing.T) {
	f := newFixture(&models.Model{ID: "m1", ProfileID: "p1", Status: models.ModelStatusReady})
	f.queue.fail = errors.New("queue unavailable")

	_, err := f.svc.StartEvaluation(context.Background(), "m1", "p1", validRun())
	require.Error(t, err)

	assert.Equal(t, 60, f.quota.released)
	assert.Equal(t, []models.ModelStatus{models.ModelStatusQueued, models.ModelStatusReady}, f.mdl.updates,
		"the model returns to READY after a failed admission")
}

func TestSubmitToLeaderboard(t *testing.T) {
	f := newFixture(&models.Model{ID: "m1", ProfileID: "p1", Status: models.ModelStatusReady})

	job, err := f.svc.SubmitToLeaderboard(context.Background(), "m1", "p1", "lb-1", validRun())
	require.NoError(t, err)

	assert.Equal(t, models.JobKindSubmission, job.Kind)
	require.NotNil(t, job.LeaderboardID)
	assert.Equal(t, "lb-1", *job.LeaderboardID)
	require.Len(t, f.queue.published, 1)
	require.NotNil(t, f.queue.published[0].LeaderboardID)
}

func TestSubmitToUnknownLeaderboard(t *testing.T) {
	f := newFixture(&models.Model{ID: "m1", ProfileID: "p1", Status: models.ModelStatusReady})

	_, err := f.svc.SubmitToLeaderboard(context.Background(), "m1", "p1", "lb-missing", validRun())
	assert.True(t, errors.Is(err, faults.ErrNotFound))
	assert.Zero(t, f.quota.reserved)
}
