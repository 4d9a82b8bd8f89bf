package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ebook-queue/internal/config"
	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
	"ebook-queue/internal/infra/logging"
	"ebook-queue/internal/infra/metrics"
	"ebook-queue/internal/usecase"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

// Outcome of one worker iteration.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped" // record pointed at a unit that was not queued
	OutcomeMissing   = "missing" // record pointed at a unit that does not exist
)

// Result describes one processed dispatch record.
type Result struct {
	JobID     string        `json:"jobId"`
	UnitIndex int           `json:"unitIndex"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
}

func (r Result) Success() bool { return r.Outcome == OutcomeCompleted }

type ProcessorConfig struct {
	// PopTimeout is how long one Pop blocks; zero makes Pop non-blocking and the
	// loop sleeps IdleSleep between empty polls instead.
	PopTimeout   time.Duration
	IdleSleep    time.Duration
	ErrorBackoff time.Duration
	// MarkFailedAttempts bounds the retries of the secondary "mark failed" write.
	MarkFailedAttempts uint
}

func ProcessorConfigFrom(store config.StoreConfig, w config.WorkerConfig) ProcessorConfig {
	return ProcessorConfig{
		PopTimeout:         store.PopTimeout,
		IdleSleep:          w.IdleSleep,
		ErrorBackoff:       w.ErrorBackoff,
		MarkFailedAttempts: 3,
	}
}

// UnitProcessor is the Worker Loop: it pops dispatch records and drives each unit
// through the state machine. Nothing it meets may stop the loop.
type UnitProcessor struct {
	store  repository.JobStore
	queue  repository.DispatchQueue
	states usecase.UnitStateMachine
	engine usecase.ChunkEngine
	cache  repository.ChunkCache
	cfg    ProcessorConfig
	log    *zerolog.Logger
}

func NewUnitProcessor(
	store repository.JobStore,
	queue repository.DispatchQueue,
	states usecase.UnitStateMachine,
	engine usecase.ChunkEngine,
	cache repository.ChunkCache,
	cfg ProcessorConfig,
	logger *zerolog.Logger,
) *UnitProcessor {
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.MarkFailedAttempts == 0 {
		cfg.MarkFailedAttempts = 3
	}
	l := logger.With().Str("component", "UnitProcessor").Logger()
	return &UnitProcessor{
		store:  store,
		queue:  queue,
		states: states,
		engine: engine,
		cache:  cache,
		cfg:    cfg,
		log:    &l,
	}
}

// Run loops until ctx ends.
func (p *UnitProcessor) Run(ctx context.Context) {
	log := logging.With(ctx, p.log)
	log.Info().Dur("pop_timeout", p.cfg.PopTimeout).Msg("worker loop started")
	defer log.Info().Msg("worker loop stopped")

	for ctx.Err() == nil {
		_, err := p.next(ctx, p.cfg.PopTimeout)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrQueueEmpty):
			if p.cfg.PopTimeout <= 0 {
				sleep(ctx, p.cfg.IdleSleep)
			}
		case ctx.Err() != nil:
			return
		default:
			metrics.IncStoreError("worker_iteration")
			log.Error().Err(err).Dur("backoff", p.cfg.ErrorBackoff).Msg("worker iteration abandoned")
			sleep(ctx, p.cfg.ErrorBackoff)
		}
	}
}

// ProcessNext runs one iteration without waiting for the queue. It returns
// domain.ErrQueueEmpty when there was nothing to do.
func (p *UnitProcessor) ProcessNext(ctx context.Context) (*Result, error) {
	return p.next(ctx, 0)
}

// Drain runs up to n iterations and stops early when the queue is empty or the
// store fails.
func (p *UnitProcessor) Drain(ctx context.Context, n int) ([]Result, error) {
	out := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		res, err := p.ProcessNext(ctx)
		if errors.Is(err, domain.ErrQueueEmpty) {
			break
		}
		if res != nil {
			out = append(out, *res)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (p *UnitProcessor) next(ctx context.Context, wait time.Duration) (*Result, error) {
	rec, err := p.queue.Pop(ctx, wait)
	if err != nil {
		return nil, err
	}
	return p.process(ctx, rec)
}

// process handles one popped record. The returned error is non-nil only for store
// failures; the result is non-nil whenever the record was consumed.
func (p *UnitProcessor) process(ctx context.Context, rec model.DispatchRecord) (*Result, error) {
	ctx = logging.WithUnit(ctx, rec.JobID, rec.UnitIndex)
	log := logging.With(ctx, p.log)
	start := time.Now()
	res := &Result{JobID: rec.JobID, UnitIndex: rec.UnitIndex}
	finish := func(outcome string, err error) (*Result, error) {
		res.Outcome = outcome
		if err != nil {
			res.Error = err.Error()
		}
		res.Duration = time.Since(start)
		metrics.ObserveUnit(outcome, res.Duration.Seconds())
		ev := log.Info()
		if outcome != OutcomeCompleted {
			ev = log.Warn().Err(err)
		}
		ev.Str("status", outcome).Dur("duration", res.Duration).Msg("unit processed")
		return res, nil
	}

	job, unit, err := p.load(ctx, rec)
	switch {
	case errors.Is(err, errUnitMissing):
		return finish(OutcomeMissing, err)
	case errors.Is(err, domain.ErrNotFound):
		// the unit exists but its job does not
		return finish(OutcomeFailed, p.markFailed(ctx, log, rec, "job not found"))
	case err != nil:
		return p.abandon(ctx, log, rec, res, err)
	}

	if _, err := p.states.Transition(ctx, rec.JobID, rec.UnitIndex, usecase.TransitionInput{
		Status: model.UnitStatusProcessing,
	}); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return finish(OutcomeSkipped, fmt.Errorf("unit is %s", unit.Status))
		}
		return p.abandon(ctx, log, rec, res, err)
	}

	titles, err := p.titles(ctx, rec.JobID)
	if err != nil {
		return p.abandon(ctx, log, rec, res, err)
	}

	gen, genErr := p.engine.GenerateUnitContent(ctx, job, unit, titles)
	retries := 0
	if gen != nil {
		retries = gen.FailedAttempts
	}
	if genErr != nil {
		if ctx.Err() != nil {
			// shutting down: leave an explicit failure instead of a stuck unit
			msg := "interrupted: worker stopped during generation"
			p.markFailedDetached(ctx, log, rec, msg, retries)
			return finish(OutcomeFailed, errors.New(msg))
		}
		_, err := p.states.Transition(ctx, rec.JobID, rec.UnitIndex, usecase.TransitionInput{
			Status:            model.UnitStatusFailed,
			Error:             genErr.Error(),
			GenerationRetries: retries,
		})
		if err != nil && domain.IsStoreError(err) {
			return p.abandon(ctx, log, rec, res, err)
		}
		return finish(OutcomeFailed, genErr)
	}

	saved, err := p.states.Transition(ctx, rec.JobID, rec.UnitIndex, usecase.TransitionInput{
		Status:            model.UnitStatusCompleted,
		Content:           gen.Content,
		GenerationRetries: retries,
	})
	if err != nil && saved == nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// the reconciler timed the unit out while it was generating
			return finish(OutcomeSkipped, err)
		}
		return p.abandon(ctx, log, rec, res, err)
	}
	// saved != nil with an error: content is stored, counters lag until reconciled
	if cerr := p.cache.Clear(ctx, rec.JobID, rec.UnitIndex); cerr != nil {
		log.Debug().Err(cerr).Msg("chunk cache not cleared")
	}
	return finish(OutcomeCompleted, nil)
}

var errUnitMissing = errors.New("unit not found")

func (p *UnitProcessor) load(ctx context.Context, rec model.DispatchRecord) (*model.Job, *model.WorkUnit, error) {
	unit, err := p.store.GetUnit(ctx, rec.JobID, rec.UnitIndex)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, errUnitMissing
	}
	if err != nil {
		return nil, nil, err
	}
	job, err := p.store.GetJob(ctx, rec.JobID)
	if err != nil {
		return nil, unit, err
	}
	return job, unit, nil
}

func (p *UnitProcessor) titles(ctx context.Context, jobID string) ([]string, error) {
	units, err := p.store.ListUnits(ctx, jobID)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(units))
	for i, u := range units {
		titles[i] = u.Title
	}
	return titles, nil
}

// abandon gives up the iteration after a store failure. The record is already
// popped, so it waits out the backoff and tries to leave the unit failed.
func (p *UnitProcessor) abandon(ctx context.Context, log *zerolog.Logger, rec model.DispatchRecord, res *Result, cause error) (*Result, error) {
	log.Error().Err(cause).Msg("store failure while processing unit")
	if err := p.markFailedWithBackoff(ctx, log, rec, "store error: "+cause.Error()); err != nil {
		log.Error().Err(err).Msg("unit left unmarked; reconciler will time it out")
	}
	res.Outcome = OutcomeFailed
	res.Error = cause.Error()
	return res, cause
}

func (p *UnitProcessor) markFailed(ctx context.Context, log *zerolog.Logger, rec model.DispatchRecord, msg string) error {
	_, err := p.states.Transition(ctx, rec.JobID, rec.UnitIndex, usecase.TransitionInput{
		Status: model.UnitStatusFailed,
		Error:  msg,
	})
	if err != nil {
		log.Error().Err(err).Str("reason", msg).Msg("could not mark unit failed")
	}
	return errors.New(msg)
}

func (p *UnitProcessor) markFailedWithBackoff(ctx context.Context, log *zerolog.Logger, rec model.DispatchRecord, msg string) error {
	return retry.Do(
		func() error {
			_, err := p.states.Transition(ctx, rec.JobID, rec.UnitIndex, usecase.TransitionInput{
				Status: model.UnitStatusFailed,
				Error:  msg,
			})
			switch {
			case err == nil:
				return nil
			case domain.IsStoreError(err):
				return err
			default:
				// not found, or already terminal: nothing left to mark
				return retry.Unrecoverable(err)
			}
		},
		retry.Context(ctx),
		retry.Attempts(p.cfg.MarkFailedAttempts),
		retry.Delay(p.cfg.ErrorBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Msg("mark failed retry")
		}),
	)
}

func (p *UnitProcessor) markFailedDetached(ctx context.Context, log *zerolog.Logger, rec model.DispatchRecord, msg string, retries int) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := p.states.Transition(dctx, rec.JobID, rec.UnitIndex, usecase.TransitionInput{
		Status:            model.UnitStatusFailed,
		Error:             msg,
		GenerationRetries: retries,
	}); err != nil {
		log.Error().Err(err).Msg("could not mark interrupted unit failed")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
