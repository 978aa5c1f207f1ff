package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rl-orchestrator/core/models"
)

// fakeRecords backs all four aggregator interfaces from in-memory maps,
// honoring the cursor contract of the repositories: pages are ordered by
// ID, the cursor is the last ID of the previous page, and an empty next
// cursor ends the walk.
type fakeRecords struct {
	mu        sync.Mutex
	models    map[string][]string // profileID -> model IDs
	jobCounts map[string]map[models.JobKind]int
	boards    int
	peakReads int
	reads     int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		models:    make(map[string][]string),
		jobCounts: make(map[string]map[models.JobKind]int),
	}
}

func (f *fakeRecords) addModel(profileID, modelID string, training, evaluation int) {
	f.models[profileID] = append(f.models[profileID], modelID)
	f.jobCounts[modelID] = map[models.JobKind]int{
		models.JobKindTraining:   training,
		models.JobKindEvaluation: evaluation,
	}
}

func page(ids []string, limit int, cursor string) ([]string, string) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	start := 0
	if cursor != "" {
		start = sort.SearchStrings(sorted, cursor)
		if start < len(sorted) && sorted[start] == cursor {
			start++
		}
	}
	end := start + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	out := sorted[start:end]
	if len(out) < limit {
		return out, ""
	}
	return out, out[len(out)-1]
}

func (f *fakeRecords) ListProfileIDs(_ context.Context, limit int, cursor string) ([]string, string, error) {
	ids := make([]string, 0, len(f.models))
	for id := range f.models {
		ids = append(ids, id)
	}
	out, next := page(ids, limit, cursor)
	return out, next, nil
}

func (f *fakeRecords) ListByProfile(_ context.Context, profileID string, limit int, cursor string) ([]*models.Model, string, error) {
	ids, next := page(f.models[profileID], limit, cursor)
	out := make([]*models.Model, len(ids))
	for i, id := range ids {
		out[i] = &models.Model{ID: id, ProfileID: profileID}
	}
	return out, next, nil
}

func (f *fakeRecords) CountByModel(_ context.Context, modelID string, kind models.JobKind) (int, error) {
	f.mu.Lock()
	f.reads++
	if f.reads > f.peakReads {
		f.peakReads = f.reads
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.reads--
		f.mu.Unlock()
	}()
	return f.jobCounts[modelID][kind], nil
}

func (f *fakeRecords) Count(context.Context) (int, error) {
	return f.boards, nil
}

func TestModelCounts(t *testing.T) {
	rec := newFakeRecords()
	rec.addModel("p1", "model-a", 3, 2)
	agg := NewAggregator(rec, rec, rec, rec, 0)

	mc, err := agg.ModelCounts(context.Background(), "model-a")
	require.NoError(t, err)
	assert.Equal(t, ModelCounts{TrainingJobs: 3, EvaluationJobs: 2}, mc)
}

func TestProfileCountsPaginatesModels(t *testing.T) {
	rec := newFakeRecords()
	// 230 models forces three pages at the 100-model page size.
	for i := 0; i < 230; i++ {
		rec.addModel("p1", fmt.Sprintf("model-%03d", i), 1, 2)
	}
	agg := NewAggregator(rec, rec, rec, rec, 4)

	pc, err := agg.ProfileCounts(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, ProfileCounts{Models: 230, TrainingJobs: 230, EvaluationJobs: 460}, pc)
	assert.LessOrEqual(t, rec.peakReads, 8, "fan-out of 4 means at most 4 models counted at once")
}

func TestSystemCountsPaginatesProfiles(t *testing.T) {
	rec := newFakeRecords()
	rec.boards = 7
	// 105 profiles forces two profile pages.
	for i := 0; i < 105; i++ {
		profileID := fmt.Sprintf("profile-%03d", i)
		rec.addModel(profileID, fmt.Sprintf("model-%03d-a", i), 2, 1)
		rec.addModel(profileID, fmt.Sprintf("model-%03d-b", i), 0, 3)
	}
	agg := NewAggregator(rec, rec, rec, rec, 0)

	sc, err := agg.SystemCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SystemCounts{
		Profiles:       105,
		Models:         210,
		TrainingJobs:   210,
		EvaluationJobs: 420,
		Leaderboards:   7,
	}, sc)
}

func TestSystemCountsEmpty(t *testing.T) {
	agg := NewAggregator(newFakeRecords(), newFakeRecords(), newFakeRecords(), newFakeRecords(), 0)

	sc, err := agg.SystemCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SystemCounts{}, sc)
}
