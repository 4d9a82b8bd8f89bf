//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/infra/memstore"
	"ebook-queue/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type fakeLibrary struct {
	mu       sync.Mutex
	fail     error
	archived []*model.ArchivedEbook
}

func (f *fakeLibrary) Enabled() bool { return true }
func (f *fakeLibrary) Archive(ctx context.Context, job *model.Job, units []*model.WorkUnit) (*model.ArchivedEbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	e := model.NewArchivedEbook(job, units, time.Now())
	f.archived = append(f.archived, e)
	return e, nil
}
func (f *fakeLibrary) List(ctx context.Context, limit, offset int) ([]*model.ArchivedEbook, error) {
	return f.archived, nil
}
func (f *fakeLibrary) Get(ctx context.Context, id string) (*model.ArchivedEbook, error) {
	return nil, domain.ErrNotFound
}

type rig struct {
	store    *memstore.Store
	queue    *memstore.Queue
	cache    *memstore.ChunkCache
	locker   *memstore.Locker
	states   usecase.UnitStateMachine
	registry usecase.JobRegistry
	library  *fakeLibrary
	rec      *Reconciler
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store := memstore.New()
	q := store.Queue("pages")
	states := usecase.NewUnitStateMachine(store, newTestLogger())
	r := &rig{
		store:    store,
		queue:    q,
		cache:    memstore.NewChunkCache(),
		locker:   memstore.NewLocker(),
		states:   states,
		registry: usecase.NewJobRegistry(store, q, "pages", states, newTestLogger()),
		library:  &fakeLibrary{},
	}
	r.rec = NewReconciler(store, q, states, r.library, r.cache, r.locker, ReconcilerOptions{
		Interval:   time.Hour,
		StaleAfter: 10 * time.Minute,
		Archive:    true,
	}, newTestLogger())
	return r
}

func (r *rig) create(t *testing.T, titles ...string) *model.Job {
	t.Helper()
	job, err := r.registry.CreateJob(context.Background(), usecase.CreateJobInput{
		Title:       "Birds",
		ContentMode: string(model.ContentModeUltraMinimal),
		UnitTitles:  titles,
	})
	require.NoError(t, err)
	return job
}

func (r *rig) move(t *testing.T, jobID string, index int, in usecase.TransitionInput) {
	t.Helper()
	_, err := r.states.Transition(context.Background(), jobID, index, in)
	require.NoError(t, err)
}

func TestRunOnce_RepairsDriftedCounters(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	job := r.create(t, "Owls", "Hawks")

	// counters lose a step, as after a crash between the unit write and the counter script
	require.NoError(t, r.store.ApplyTransition(ctx, job.ID, model.UnitStatusQueued, model.UnitStatusCompleted, time.Now()))

	rep, err := r.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Repaired)

	j, err := r.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitCounts{Queued: 2}, j.Counts)
	assert.Equal(t, model.JobStatusQueued, j.Status)
}

func TestRunOnce_FailsStaleProcessingUnits(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	job := r.create(t, "Owls", "Hawks")
	r.move(t, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	r.move(t, job.ID, 1, usecase.TransitionInput{Status: model.UnitStatusProcessing})

	// not stale yet
	rep, err := r.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.TimedOut)

	r.rec.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	rep, err = r.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TimedOut)

	u, err := r.store.GetUnit(ctx, job.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, model.UnitStatusFailed, u.Status)
	assert.Equal(t, staleReason, u.Error)

	// both failed: the job is terminal and retired in the same pass
	assert.Equal(t, 1, rep.Retired)
	active, _ := r.store.ListActiveJobs(ctx)
	assert.Empty(t, active)
}

func TestRunOnce_ArchivesAndRetiresFinishedJobs(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	done := r.create(t, "Owls", "Hawks")
	open := r.create(t, "Gulls")

	r.move(t, done.ID, 0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	r.move(t, done.ID, 0, usecase.TransitionInput{Status: model.UnitStatusCompleted, Content: "Owls hunt at night."})
	r.move(t, done.ID, 1, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	r.move(t, done.ID, 1, usecase.TransitionInput{Status: model.UnitStatusFailed, Error: "boom"})
	require.NoError(t, r.cache.PutPartial(ctx, done.ID, 1, 0, "half a page"))

	rep, err := r.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Jobs)
	assert.Equal(t, 1, rep.Archived)
	assert.Equal(t, 1, rep.Retired)

	require.Len(t, r.library.archived, 1)
	a := r.library.archived[0]
	assert.Equal(t, done.ID, a.ID)
	assert.Equal(t, model.JobStatusPartial, a.Status)
	assert.Equal(t, 1, a.CompletedPages)

	_, err = r.cache.Get(ctx, done.ID, 1, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	active, _ := r.store.ListActiveJobs(ctx)
	assert.Equal(t, []string{open.ID}, active)

	// requeue puts the job back on the work list
	_, err = r.registry.Requeue(ctx, done.ID, 1)
	require.NoError(t, err)
	active, _ = r.store.ListActiveJobs(ctx)
	assert.ElementsMatch(t, []string{open.ID, done.ID}, active)
}

func TestRunOnce_ArchiveFailureKeepsJobActive(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	job := r.create(t, "Owls")
	r.move(t, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusProcessing})
	r.move(t, job.ID, 0, usecase.TransitionInput{Status: model.UnitStatusCompleted, Content: "x"})
	r.library.fail = errors.New("db down")

	rep, err := r.rec.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Zero(t, rep.Retired)

	active, _ := r.store.ListActiveJobs(ctx)
	assert.Equal(t, []string{job.ID}, active)
}

func TestRunOnce_LockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	_, err := r.locker.TryLock(ctx, reconcilerLock, time.Minute)
	require.NoError(t, err)

	_, err = r.rec.RunOnce(ctx)
	assert.ErrorIs(t, err, domain.ErrLockNotAcquired)
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.rec.Run(ctx) }()
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
