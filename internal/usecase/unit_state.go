// File: internal/usecase/unit_state.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
	"ebook-queue/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ UnitStateMachine = (*unitStateUC)(nil)

// transitionGrace bounds how long a unit write may run ahead of its counter update.
const transitionGrace = 30 * time.Second

// TransitionInput is the target state of a unit plus the data that travels with it.
type TransitionInput struct {
	Status  model.UnitStatus
	Content string // kept only when Status is completed
	Error   string // kept only when Status is failed
	// GenerationRetries is added to the unit's running count of failed Generator attempts.
	GenerationRetries int
}

// ReconcileResult reports what a reconcile pass saw for one job.
type ReconcileResult struct {
	Job     *model.Job
	Drifted bool
	Before  model.UnitCounts
}

// UnitStateMachine is the only code path that writes unit status, content or job counters.
type UnitStateMachine interface {
	Transition(ctx context.Context, jobID string, index int, in TransitionInput) (*model.WorkUnit, error)
	// Reconcile recomputes the job counters from its unit records and persists them
	// together with the derived status when they drifted or the stored status is stale.
	Reconcile(ctx context.Context, jobID string) (*ReconcileResult, error)
}

type unitStateUC struct {
	store repository.JobStore
	log   *zerolog.Logger
	now   func() time.Time
}

func NewUnitStateMachine(store repository.JobStore, logger *zerolog.Logger) *unitStateUC {
	l := logger.With().Str("component", "UnitStateMachine").Logger()
	return &unitStateUC{store: store, log: &l, now: time.Now}
}

func (s *unitStateUC) Transition(ctx context.Context, jobID string, index int, in TransitionInput) (*model.WorkUnit, error) {
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, in.Status)
	}
	u, err := s.store.GetUnit(ctx, jobID, index)
	if err != nil {
		return nil, err
	}
	prev := u.Status
	if !model.CanTransition(prev, in.Status) {
		return nil, fmt.Errorf("%w: %s/%d %s -> %s", domain.ErrInvalidTransition, jobID, index, prev, in.Status)
	}

	now := s.now()
	u.Status = in.Status
	switch in.Status {
	case model.UnitStatusCompleted:
		u.Content = in.Content
		u.Error = ""
	case model.UnitStatusFailed:
		u.Error = in.Error
		if u.Error == "" {
			u.Error = "unknown error"
		}
		u.Attempts++
	default:
		u.Error = ""
	}
	u.GenerationRetries += in.GenerationRetries
	u.UpdatedAt = now

	if err := s.store.SaveUnit(ctx, u); err != nil {
		return nil, err
	}
	// Not atomic with SaveUnit: a failure here leaves the counters one step
	// behind the unit records until the reconciler repairs them.
	if err := s.store.ApplyTransition(ctx, jobID, prev, in.Status, now); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Int("unit_index", index).
			Str("from", string(prev)).Str("to", string(in.Status)).
			Msg("unit saved but counters not adjusted")
		return u, err
	}
	metrics.IncTransition(string(prev), string(in.Status))
	return u, nil
}

func (s *unitStateUC) Reconcile(ctx context.Context, jobID string) (*ReconcileResult, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	units, err := s.store.ListUnits(ctx, jobID)
	if err != nil {
		return nil, err
	}

	// A unit saved after the job's last counter update means a transition is
	// between SaveUnit and ApplyTransition; recounting now would double it.
	// Past transitionGrace the writer is assumed dead and the units win.
	now := s.now()
	for _, u := range units {
		if u.UpdatedAt.After(job.UpdatedAt) && now.Sub(u.UpdatedAt) < transitionGrace {
			s.log.Debug().Str("job_id", jobID).Int("unit_index", u.Index).
				Msg("reconcile skipped: transition in flight")
			return &ReconcileResult{Job: job, Before: job.Counts}, nil
		}
	}

	counts := model.CountUnits(units)
	// Units never disappear while their job exists; missing ones are counted as
	// queued so the sum invariant keeps holding.
	if missing := job.TotalUnits - counts.Sum(); missing > 0 {
		counts.Queued += missing
	}
	derived := model.DeriveStatus(counts, job.TotalUnits)
	res := &ReconcileResult{Job: job, Before: job.Counts, Drifted: counts != job.Counts}
	if !res.Drifted && job.Status == derived {
		return res, nil
	}

	err = s.store.SetCounts(ctx, jobID, counts, derived, job.UpdatedAt, now)
	if errors.Is(err, domain.ErrConflict) {
		// a transition landed meanwhile; the next pass will look again
		s.log.Debug().Str("job_id", jobID).Msg("reconcile skipped: job changed during pass")
		res.Drifted = false
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if res.Drifted {
		s.log.Warn().Str("job_id", jobID).
			Interface("before", job.Counts).Interface("after", counts).
			Msg("job counters drifted; recomputed from units")
	}
	job.Counts = counts
	job.Status = derived
	job.UpdatedAt = now
	return res, nil
}
