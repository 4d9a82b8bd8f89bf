package model

import "time"

type UnitStatus string

const (
	UnitStatusQueued     UnitStatus = "queued"
	UnitStatusProcessing UnitStatus = "processing"
	UnitStatusCompleted  UnitStatus = "completed"
	UnitStatusFailed     UnitStatus = "failed"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitStatusQueued, UnitStatusProcessing, UnitStatusCompleted, UnitStatusFailed:
		return true
	}
	return false
}

// legal lists the allowed next states. failed -> queued is only reachable through an
// explicit requeue; queued -> failed covers missing job data and the stale reconciler.
var legal = map[UnitStatus][]UnitStatus{
	UnitStatusQueued:     {UnitStatusProcessing, UnitStatusFailed},
	UnitStatusProcessing: {UnitStatusCompleted, UnitStatusFailed},
	UnitStatusFailed:     {UnitStatusQueued},
	UnitStatusCompleted:  {},
}

// CanTransition reports whether from -> to is a legal unit transition.
func CanTransition(from, to UnitStatus) bool {
	for _, s := range legal[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WorkUnit is one page of a Job, addressed by (JobID, Index).
type WorkUnit struct {
	JobID             string     `json:"jobId"`
	Index             int        `json:"index"`
	Title             string     `json:"title"`
	Status            UnitStatus `json:"status"`
	Content           string     `json:"content,omitempty"`
	Error             string     `json:"error,omitempty"`
	Attempts          int        `json:"attempts"`
	GenerationRetries int        `json:"generationRetries"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func NewWorkUnit(jobID string, index int, title string, now time.Time) *WorkUnit {
	return &WorkUnit{
		JobID:     jobID,
		Index:     index,
		Title:     title,
		Status:    UnitStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DispatchRecord is the opaque queue reference to a unit awaiting processing.
type DispatchRecord struct {
	JobID     string `json:"jobId"`
	UnitIndex int    `json:"unitIndex"`
}
