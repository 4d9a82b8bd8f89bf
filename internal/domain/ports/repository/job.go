package repository

import (
	"context"
	"time"

	"ebook-queue/internal/domain/model"
)

// JobStore persists Job and Work Unit records.
//
// Counter adjustment and unit writes are separate operations: a crash between
// SaveUnit and ApplyTransition leaves counters off by one until the reconciler
// recomputes them from the unit records.
type JobStore interface {
	// CreateJob writes the job, every unit and one dispatch record per unit as a
	// single batch. Readers never observe a partially created job.
	CreateJob(ctx context.Context, job *model.Job, units []*model.WorkUnit, queue string) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	GetUnit(ctx context.Context, jobID string, index int) (*model.WorkUnit, error)
	// ListUnits returns all units ordered by index.
	ListUnits(ctx context.Context, jobID string) ([]*model.WorkUnit, error)
	SaveUnit(ctx context.Context, unit *model.WorkUnit) error

	// ApplyTransition atomically moves one count from `from` to `to` on the job
	// counters (from == "" skips the decrement) and, when `to` is processing, sets
	// the job status to processing only if it is still queued. updatedAt becomes
	// `at`, or one millisecond past its stored value when `at` is not later, so
	// every adjustment is visible to SetCounts.
	ApplyTransition(ctx context.Context, jobID string, from, to model.UnitStatus, at time.Time) error
	// SetCounts overwrites the counters and the stored status, but only while the
	// job's updatedAt still equals expect (millisecond precision). Otherwise it
	// returns domain.ErrConflict and writes nothing.
	SetCounts(ctx context.Context, jobID string, counts model.UnitCounts, status model.JobStatus, expect, at time.Time) error

	// ListActiveJobs returns ids of jobs not yet retired by the reconciler.
	ListActiveJobs(ctx context.Context) ([]string, error)
	RetireJob(ctx context.Context, jobID string) error
	// ActivateJob puts a retired job back on the reconciler work list.
	ActivateJob(ctx context.Context, jobID string) error

	Ping(ctx context.Context) error
}

// DispatchQueue is the FIFO of unit references.
type DispatchQueue interface {
	Push(ctx context.Context, rec model.DispatchRecord) error
	// Pop removes the oldest record. It waits up to timeout (0 = do not wait) and
	// returns domain.ErrQueueEmpty when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (model.DispatchRecord, error)
	Len(ctx context.Context) (int64, error)
}

// ChunkEntry is the cached state of one chunk.
type ChunkEntry struct {
	Final   string
	Partial string
}

// ChunkCache holds per-chunk text so a resumed unit does not regenerate it.
type ChunkCache interface {
	// Get returns domain.ErrNotFound when nothing is cached for the chunk.
	Get(ctx context.Context, jobID string, unit, chunk int) (ChunkEntry, error)
	PutPartial(ctx context.Context, jobID string, unit, chunk int, text string) error
	PutFinal(ctx context.Context, jobID string, unit, chunk int, text string) error
	Clear(ctx context.Context, jobID string, unit int) error
}

// Locker is a cross-process mutual exclusion primitive.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
