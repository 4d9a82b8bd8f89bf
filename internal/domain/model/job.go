package model

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusPartial    JobStatus = "partial"
)

// Terminal reports whether no unit of the job can make further progress on its own.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusPartial
}

// UnitCounts are the per-status aggregate counters kept on the Job record.
type UnitCounts struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func (c UnitCounts) Sum() int {
	return c.Queued + c.Processing + c.Completed + c.Failed
}

// Add returns c with delta applied to the counter matching status.
func (c UnitCounts) Add(status UnitStatus, delta int) UnitCounts {
	switch status {
	case UnitStatusQueued:
		c.Queued += delta
	case UnitStatusProcessing:
		c.Processing += delta
	case UnitStatusCompleted:
		c.Completed += delta
	case UnitStatusFailed:
		c.Failed += delta
	}
	return c
}

// CountUnits recomputes counters from authoritative unit records.
func CountUnits(units []*WorkUnit) UnitCounts {
	var c UnitCounts
	for _, u := range units {
		c = c.Add(u.Status, 1)
	}
	return c
}

// DeriveStatus is the single rule for the overall job status.
func DeriveStatus(c UnitCounts, total int) JobStatus {
	switch {
	case total > 0 && c.Queued == total:
		return JobStatusQueued
	case total > 0 && c.Completed == total:
		return JobStatusCompleted
	case total > 0 && c.Failed == total:
		return JobStatusFailed
	case total > 0 && c.Completed+c.Failed == total && c.Completed > 0 && c.Failed > 0:
		return JobStatusPartial
	default:
		return JobStatusProcessing
	}
}

// Job is one requested ebook and its aggregate progress.
type Job struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	ContentMode ContentMode `json:"contentMode"`
	Status      JobStatus   `json:"status"`
	TotalUnits  int         `json:"totalPages"`
	Counts      UnitCounts  `json:"counts"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func NewJob(id, title, description string, mode ContentMode, total int, now time.Time) *Job {
	return &Job{
		ID:          id,
		Title:       title,
		Description: description,
		ContentMode: mode,
		Status:      JobStatusQueued,
		TotalUnits:  total,
		Counts:      UnitCounts{Queued: total},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Consistent reports whether the counters account for every unit.
func (j *Job) Consistent() bool {
	return j.Counts.Sum() == j.TotalUnits
}

// Derived returns the status computed from the current counters.
func (j *Job) Derived() JobStatus {
	return DeriveStatus(j.Counts, j.TotalUnits)
}
