package model

import "time"

// ArchivedEbook is a finished job as stored in the library.
type ArchivedEbook struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ContentMode    ContentMode    `json:"contentMode"`
	Status         JobStatus      `json:"status"`
	TotalPages     int            `json:"totalPages"`
	CompletedPages int            `json:"completedPages"`
	Pages          []ArchivedPage `json:"pages,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	ArchivedAt     time.Time      `json:"archivedAt"`
}

type ArchivedPage struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NewArchivedEbook snapshots the completed pages of a job.
func NewArchivedEbook(job *Job, units []*WorkUnit, now time.Time) *ArchivedEbook {
	a := &ArchivedEbook{
		ID:          job.ID,
		Title:       job.Title,
		Description: job.Description,
		ContentMode: job.ContentMode,
		Status:      job.Derived(),
		TotalPages:  job.TotalUnits,
		CreatedAt:   job.CreatedAt,
		ArchivedAt:  now,
	}
	for _, u := range units {
		if u.Status != UnitStatusCompleted {
			continue
		}
		a.Pages = append(a.Pages, ArchivedPage{Index: u.Index, Title: u.Title, Content: u.Content})
	}
	a.CompletedPages = len(a.Pages)
	return a
}
