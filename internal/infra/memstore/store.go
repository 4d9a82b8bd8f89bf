// Package memstore is an in-process Durable Store: jobs, units, dispatch queues,
// chunk cache and locks guarded by mutexes. Used by tests and `store.driver: memory`.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
)

var _ repository.JobStore = (*Store)(nil)

type unitKey struct {
	job   string
	index int
}

type Store struct {
	mu     sync.Mutex
	jobs   map[string]*model.Job
	units  map[unitKey]*model.WorkUnit
	active map[string]struct{}

	qmu    sync.Mutex
	queues map[string]*Queue
}

func New() *Store {
	return &Store{
		jobs:   make(map[string]*model.Job),
		units:  make(map[unitKey]*model.WorkUnit),
		active: make(map[string]struct{}),
		queues: make(map[string]*Queue),
	}
}

// Queue returns the named dispatch queue, creating it on first use.
func (s *Store) Queue(name string) *Queue {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	q, ok := s.queues[name]
	if !ok {
		q = newQueue()
		s.queues[name] = q
	}
	return q
}

func (s *Store) CreateJob(ctx context.Context, job *model.Job, units []*model.WorkUnit, queue string) error {
	q := s.Queue(queue)

	s.mu.Lock()
	if _, ok := s.jobs[job.ID]; ok {
		s.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	jc := *job
	s.jobs[job.ID] = &jc
	recs := make([]model.DispatchRecord, 0, len(units))
	for _, u := range units {
		uc := *u
		s.units[unitKey{u.JobID, u.Index}] = &uc
		recs = append(recs, model.DispatchRecord{JobID: u.JobID, UnitIndex: u.Index})
	}
	s.active[job.ID] = struct{}{}
	// pushed while s.mu is held so no reader sees units without their records
	q.pushAll(recs)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	jc := *j
	return &jc, nil
}

func (s *Store) GetUnit(ctx context.Context, jobID string, index int) (*model.WorkUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitKey{jobID, index}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	uc := *u
	return &uc, nil
}

func (s *Store) ListUnits(ctx context.Context, jobID string) ([]*model.WorkUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, domain.ErrNotFound
	}
	var out []*model.WorkUnit
	for k, u := range s.units {
		if k.job == jobID {
			uc := *u
			out = append(out, &uc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) SaveUnit(ctx context.Context, u *model.WorkUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	uc := *u
	s.units[unitKey{u.JobID, u.Index}] = &uc
	return nil
}

func (s *Store) ApplyTransition(ctx context.Context, jobID string, from, to model.UnitStatus, at time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if from != "" {
		j.Counts = j.Counts.Add(from, -1)
	}
	j.Counts = j.Counts.Add(to, 1)
	if at.UnixMilli() <= j.UpdatedAt.UnixMilli() {
		at = time.UnixMilli(j.UpdatedAt.UnixMilli() + 1)
	}
	j.UpdatedAt = at
	if to == model.UnitStatusProcessing && j.Status == model.JobStatusQueued {
		j.Status = model.JobStatusProcessing
	}
	return nil
}

func (s *Store) SetCounts(ctx context.Context, jobID string, c model.UnitCounts, status model.JobStatus, expect, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if j.UpdatedAt.UnixMilli() != expect.UnixMilli() {
		return domain.ErrConflict
	}
	j.Counts = c
	j.Status = status
	j.UpdatedAt = at
	return nil
}

func (s *Store) ListActiveJobs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) RetireJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, jobID)
	return nil
}

func (s *Store) ActivateJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return domain.ErrNotFound
	}
	s.active[jobID] = struct{}{}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
