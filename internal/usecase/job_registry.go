// File: internal/usecase/job_registry.go
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
	"ebook-queue/internal/infra/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ JobRegistry = (*jobRegistryUC)(nil)

// CreateJobInput is what a caller supplies for a new ebook.
type CreateJobInput struct {
	Title       string   `validate:"required,max=300"`
	Description string   `validate:"max=5000"`
	ContentMode string   // empty selects the default mode
	UnitTitles  []string `validate:"required,min=1,max=500,dive,required,max=300"`
}

// JobView is a job snapshot with the status derived from its counters.
type JobView struct {
	Job   *model.Job
	Units []*model.WorkUnit
}

type JobRegistry interface {
	CreateJob(ctx context.Context, in CreateJobInput) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListUnits(ctx context.Context, jobID string) ([]*model.WorkUnit, error)
	View(ctx context.Context, jobID string) (*JobView, error)
	// Requeue moves a failed unit back to queued and pushes a new dispatch record.
	Requeue(ctx context.Context, jobID string, index int) (*model.WorkUnit, error)
}

type jobRegistryUC struct {
	store    repository.JobStore
	queue    repository.DispatchQueue
	queueKey string
	states   UnitStateMachine
	validate *validator.Validate
	log      *zerolog.Logger
	now      func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func NewJobRegistry(
	store repository.JobStore,
	queue repository.DispatchQueue,
	queueName string,
	states UnitStateMachine,
	logger *zerolog.Logger,
) *jobRegistryUC {
	l := logger.With().Str("component", "JobRegistry").Logger()
	return &jobRegistryUC{
		store:    store,
		queue:    queue,
		queueKey: queueName,
		states:   states,
		validate: validator.New(),
		log:      &l,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func (r *jobRegistryUC) CreateJob(ctx context.Context, in CreateJobInput) (*model.Job, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	titles := make([]string, len(in.UnitTitles))
	for i, t := range in.UnitTitles {
		titles[i] = strings.TrimSpace(t)
	}
	in.UnitTitles = titles

	if err := r.validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}
	mode, err := model.ParseContentMode(in.ContentMode)
	if err != nil {
		return nil, &domain.ValidationError{Field: "contentMode", Reason: "must be one of FULL, MEDIUM, MINIMAL, ULTRA_MINIMAL"}
	}

	now := r.now().UTC()
	id, err := r.newID(now)
	if err != nil {
		return nil, err
	}
	job := model.NewJob(id, in.Title, in.Description, mode, len(in.UnitTitles), now)
	units := make([]*model.WorkUnit, len(in.UnitTitles))
	for i, t := range in.UnitTitles {
		units[i] = model.NewWorkUnit(id, i, t, now)
	}

	if err := r.store.CreateJob(ctx, job, units, r.queueKey); err != nil {
		return nil, err
	}
	metrics.IncJobCreated(string(mode))
	r.log.Info().Str("job_id", id).Int("units", len(units)).Str("mode", string(mode)).Msg("job created")
	return job, nil
}

func (r *jobRegistryUC) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job.Status = job.Derived()
	return job, nil
}

func (r *jobRegistryUC) ListUnits(ctx context.Context, jobID string) ([]*model.WorkUnit, error) {
	return r.store.ListUnits(ctx, jobID)
}

func (r *jobRegistryUC) View(ctx context.Context, jobID string) (*JobView, error) {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	units, err := r.store.ListUnits(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobView{Job: job, Units: units}, nil
}

func (r *jobRegistryUC) Requeue(ctx context.Context, jobID string, index int) (*model.WorkUnit, error) {
	prev, err := r.store.GetUnit(ctx, jobID, index)
	if err != nil {
		return nil, err
	}
	u, err := r.states.Transition(ctx, jobID, index, TransitionInput{Status: model.UnitStatusQueued})
	if err != nil && u == nil {
		return nil, err
	}
	if perr := r.queue.Push(ctx, model.DispatchRecord{JobID: jobID, UnitIndex: index}); perr != nil {
		// a queued unit without a dispatch record would never be picked up
		// and could not be requeued again, so put it back to failed
		if _, rerr := r.states.Transition(context.WithoutCancel(ctx), jobID, index, TransitionInput{
			Status: model.UnitStatusFailed,
			Error:  prev.Error,
		}); rerr != nil {
			r.log.Error().Err(rerr).Str("job_id", jobID).Int("unit_index", index).
				Msg("requeue push failed and unit could not be reverted")
			return nil, errors.Join(perr, rerr)
		}
		return nil, domain.NewStoreError("requeue", perr)
	}
	if aerr := r.store.ActivateJob(ctx, jobID); aerr != nil {
		r.log.Warn().Err(aerr).Str("job_id", jobID).Msg("requeued job not re-activated")
	}
	r.log.Info().Str("job_id", jobID).Int("unit_index", index).Msg("unit requeued")
	return u, err
}

func (r *jobRegistryUC) newID(now time.Time) (string, error) {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), r.entropy)
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return strings.ToLower(id.String()), nil
}

func toValidationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return &domain.ValidationError{Reason: err.Error()}
	}
	fe := ves[0]
	field := fe.Field()
	switch fe.StructField() {
	case "Title":
		field = "title"
	case "Description":
		field = "description"
	case "UnitTitles":
		field = "unitTitles"
	}
	if strings.HasPrefix(fe.StructNamespace(), "CreateJobInput.UnitTitles[") {
		field = "unitTitles" + strings.TrimPrefix(fe.Field(), "UnitTitles")
	}
	reason := fe.Tag()
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "min":
		reason = "must have at least " + fe.Param() + " entries"
	case "max":
		reason = "must be at most " + fe.Param()
	}
	return &domain.ValidationError{Field: field, Reason: reason}
}
