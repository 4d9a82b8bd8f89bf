package sched

import (
	"context"
	"errors"
	"time"

	"ebook-queue/internal/config"
	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
	"ebook-queue/internal/infra/metrics"
	"ebook-queue/internal/usecase"

	"github.com/rs/zerolog"
)

const (
	reconcilerLock = "reconciler"
	staleReason    = "processing timeout"
)

// Report summarises one reconciler pass.
type Report struct {
	Jobs     int `json:"jobs"`
	Repaired int `json:"repaired"` // jobs whose counters were recomputed
	TimedOut int `json:"timedOut"` // units failed for sitting in processing too long
	Archived int `json:"archived"`
	Retired  int `json:"retired"`
	Errors   int `json:"errors"`
}

type ReconcilerOptions struct {
	Interval   time.Duration
	StaleAfter time.Duration
	LockTTL    time.Duration
	Archive    bool
}

func ReconcilerOptionsFrom(c config.ReconcilerConfig) ReconcilerOptions {
	return ReconcilerOptions{
		Interval:   c.Interval,
		StaleAfter: c.StaleAfter,
		LockTTL:    c.LockTTL,
		Archive:    c.ArchiveFinished,
	}
}

// Reconciler periodically walks the active jobs: it recomputes counters from the
// unit records, fails units stuck in processing, and retires finished jobs after
// archiving them and dropping their chunk caches.
type Reconciler struct {
	store   repository.JobStore
	queue   repository.DispatchQueue
	states  usecase.UnitStateMachine
	library usecase.LibraryUseCase
	cache   repository.ChunkCache
	locker  repository.Locker
	opts    ReconcilerOptions
	log     *zerolog.Logger
	now     func() time.Time
}

func NewReconciler(
	store repository.JobStore,
	queue repository.DispatchQueue,
	states usecase.UnitStateMachine,
	library usecase.LibraryUseCase,
	cache repository.ChunkCache,
	locker repository.Locker,
	opts ReconcilerOptions,
	logger *zerolog.Logger,
) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.Interval
	}
	l := logger.With().Str("component", "Reconciler").Logger()
	return &Reconciler{
		store:   store,
		queue:   queue,
		states:  states,
		library: library,
		cache:   cache,
		locker:  locker,
		opts:    opts,
		log:     &l,
		now:     time.Now,
	}
}

// Run executes a pass immediately and then every Interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.opts.Interval).Dur("stale_after", r.opts.StaleAfter).Msg("Starting reconciler")
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, domain.ErrLockNotAcquired) && ctx.Err() == nil {
			r.log.Error().Err(err).Msg("reconcile pass failed")
		}
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Stopping reconciler")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs one pass while holding the reconciler lock. It returns
// domain.ErrLockNotAcquired when another process is already reconciling.
func (r *Reconciler) RunOnce(ctx context.Context) (*Report, error) {
	token, err := r.locker.TryLock(ctx, reconcilerLock, r.opts.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockNotAcquired) {
			r.log.Debug().Msg("reconciler lock held elsewhere; skipping pass")
		}
		return nil, err
	}
	defer func() {
		if err := r.locker.Unlock(context.WithoutCancel(ctx), reconcilerLock, token); err != nil {
			r.log.Warn().Err(err).Msg("reconciler unlock failed")
		}
	}()

	if n, err := r.queue.Len(ctx); err == nil {
		metrics.SetQueueDepth(n)
	}

	ids, err := r.store.ListActiveJobs(ctx)
	if err != nil {
		return nil, err
	}
	rep := &Report{Jobs: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if err := r.reconcileJob(ctx, id, rep); err != nil {
			rep.Errors++
			r.log.Error().Err(err).Str("job_id", id).Msg("reconcile job failed")
		}
	}
	if rep.Repaired+rep.TimedOut+rep.Retired > 0 {
		r.log.Info().Interface("report", rep).Msg("reconcile pass done")
	}
	return rep, nil
}

func (r *Reconciler) reconcileJob(ctx context.Context, jobID string, rep *Report) error {
	units, err := r.store.ListUnits(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		// job hash gone (expired or deleted): nothing to track
		rep.Retired++
		return r.store.RetireJob(ctx, jobID)
	}
	if err != nil {
		return err
	}

	cutoff := r.now().Add(-r.opts.StaleAfter)
	for _, u := range units {
		if u.Status != model.UnitStatusProcessing || !u.UpdatedAt.Before(cutoff) {
			continue
		}
		_, err := r.states.Transition(ctx, jobID, u.Index, usecase.TransitionInput{
			Status: model.UnitStatusFailed,
			Error:  staleReason,
		})
		switch {
		case err == nil:
			rep.TimedOut++
			metrics.IncRepair("stale_unit")
			r.log.Warn().Str("job_id", jobID).Int("unit_index", u.Index).
				Time("since", u.UpdatedAt).Msg("unit timed out in processing")
		case errors.Is(err, domain.ErrInvalidTransition):
			// finished meanwhile
		default:
			return err
		}
	}

	res, err := r.states.Reconcile(ctx, jobID)
	if err != nil {
		return err
	}
	if res.Drifted {
		rep.Repaired++
		metrics.IncRepair("counters")
	}

	job := res.Job
	if !job.Consistent() || !job.Derived().Terminal() {
		return nil
	}
	return r.retire(ctx, job, rep)
}

func (r *Reconciler) retire(ctx context.Context, job *model.Job, rep *Report) error {
	units, err := r.store.ListUnits(ctx, job.ID)
	if err != nil {
		return err
	}
	if r.opts.Archive && r.library != nil && r.library.Enabled() {
		if _, err := r.library.Archive(ctx, job, units); err != nil {
			// stay active so the next pass retries the archive
			return err
		}
		rep.Archived++
	}
	for _, u := range units {
		if err := r.cache.Clear(ctx, job.ID, u.Index); err != nil {
			r.log.Debug().Err(err).Str("job_id", job.ID).Int("unit_index", u.Index).Msg("chunk cache not cleared")
		}
	}
	if err := r.store.RetireJob(ctx, job.ID); err != nil {
		return err
	}
	rep.Retired++
	r.log.Info().Str("job_id", job.ID).Str("status", string(job.Derived())).Msg("job retired")
	return nil
}
