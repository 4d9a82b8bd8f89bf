//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/infra/memstore"
	"ebook-queue/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_CountersFollowUnits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.createJob(t, model.ContentModeMedium, "A", "B", "C")

	step := func(i int, in usecase.TransitionInput) {
		t.Helper()
		_, err := f.states.Transition(ctx, job.ID, i, in)
		require.NoError(t, err)
		j, err := f.store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.True(t, j.Consistent(), "counters %+v do not sum to %d", j.Counts, j.TotalUnits)
	}

	step(0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	j, _ := f.store.GetJob(ctx, job.ID)
	assert.Equal(t, model.JobStatusProcessing, j.Status)

	step(0, usecase.TransitionInput{Status: model.UnitStatusCompleted, Content: "done"})
	step(1, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	step(1, usecase.TransitionInput{Status: model.UnitStatusFailed, Error: "boom", GenerationRetries: 4})
	step(2, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	step(2, usecase.TransitionInput{Status: model.UnitStatusCompleted, Content: "also done"})

	j, _ = f.registry.GetJob(ctx, job.ID)
	assert.Equal(t, model.UnitCounts{Completed: 2, Failed: 1}, j.Counts)
	assert.Equal(t, model.JobStatusPartial, j.Status)

	u, _ := f.store.GetUnit(ctx, job.ID, 1)
	assert.Equal(t, "boom", u.Error)
	assert.Equal(t, 1, u.Attempts)
	assert.Equal(t, 4, u.GenerationRetries)
	assert.Empty(t, u.Content)

	u, _ = f.store.GetUnit(ctx, job.ID, 0)
	assert.Equal(t, "done", u.Content)
	assert.Empty(t, u.Error)
}

func TestTransition_RejectsIllegal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.createJob(t, model.ContentModeMedium, "A")

	_, err := f.states.Transition(ctx, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusCompleted})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.states.Transition(ctx, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	require.NoError(t, err)
	_, err = f.states.Transition(ctx, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	j, _ := f.store.GetJob(ctx, job.ID)
	assert.Equal(t, model.UnitCounts{Processing: 1}, j.Counts, "rejected transitions leave counters alone")
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.states.Transition(context.Background(), "nope", 0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconcile_RepairsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.createJob(t, model.ContentModeMedium, "A", "B")

	// simulate a crash between the unit write and the counter adjustment
	u, _ := f.store.GetUnit(ctx, job.ID, 0)
	u.Status = model.UnitStatusProcessing
	require.NoError(t, f.store.SaveUnit(ctx, u))

	res, err := f.states.Reconcile(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Drifted)
	assert.Equal(t, model.UnitCounts{Queued: 2}, res.Before)

	j, _ := f.store.GetJob(ctx, job.ID)
	assert.Equal(t, model.UnitCounts{Queued: 1, Processing: 1}, j.Counts)
	assert.Equal(t, model.JobStatusProcessing, j.Status)

	res, err = f.states.Reconcile(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, res.Drifted)
}

func TestReconcile_ConflictLeavesCounters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.createJob(t, model.ContentModeMedium, "A")

	j, _ := f.store.GetJob(ctx, job.ID)
	err := f.store.SetCounts(ctx, job.ID, model.UnitCounts{Failed: 1}, model.JobStatusFailed,
		j.UpdatedAt.Add(-time.Second), time.Now())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// reconcilingStore runs a reconcile pass right after every completed unit is
// written, i.e. before the transition has adjusted the job counters.
type reconcilingStore struct {
	*memstore.Store
	states usecase.UnitStateMachine
	seen   []*usecase.ReconcileResult
}

func (s *reconcilingStore) SaveUnit(ctx context.Context, u *model.WorkUnit) error {
	if err := s.Store.SaveUnit(ctx, u); err != nil {
		return err
	}
	if u.Status == model.UnitStatusCompleted {
		res, err := s.states.Reconcile(ctx, u.JobID)
		if err != nil {
			return err
		}
		s.seen = append(s.seen, res)
	}
	return nil
}

func TestReconcile_DuringTransitionDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	q := mem.Queue("pages")
	store := &reconcilingStore{Store: mem, states: usecase.NewUnitStateMachine(mem, newTestLogger())}
	states := usecase.NewUnitStateMachine(store, newTestLogger())
	registry := usecase.NewJobRegistry(store, q, "pages", states, newTestLogger())

	job, err := registry.CreateJob(ctx, usecase.CreateJobInput{Title: "One page", UnitTitles: []string{"Only"}})
	require.NoError(t, err)
	_, err = states.Transition(ctx, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	_, err = states.Transition(ctx, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusCompleted, Content: "text"})
	require.NoError(t, err)

	require.Len(t, store.seen, 1)
	assert.False(t, store.seen[0].Drifted, "the pass must leave an in-flight transition alone")

	j, err := registry.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitCounts{Completed: 1}, j.Counts)
	assert.Equal(t, model.JobStatusCompleted, j.Status)

	res, err := states.Reconcile(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, res.Drifted)
}

func TestReconcile_RepairsAbandonedTransitionAfterGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job := f.createJob(t, model.ContentModeMedium, "A")

	// a writer that died after saving the unit, long enough ago to be ignored
	u, err := f.store.GetUnit(ctx, job.ID, 0)
	require.NoError(t, err)
	u.Status = model.UnitStatusProcessing
	u.UpdatedAt = time.Now().Add(-time.Minute)
	j, err := f.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.SetCounts(ctx, job.ID, j.Counts, j.Status, j.UpdatedAt, u.UpdatedAt.Add(-time.Minute)))
	require.NoError(t, f.store.SaveUnit(ctx, u))

	res, err := f.states.Reconcile(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Drifted)
	j, _ = f.store.GetJob(ctx, job.ID)
	assert.Equal(t, model.UnitCounts{Processing: 1}, j.Counts)
}
