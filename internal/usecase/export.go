// File: internal/usecase/export.go
package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
)

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// Export is a rendered ebook ready to be served as a download.
type Export struct {
	Filename string
	Body     string
	Status   model.JobStatus
	Pages    int
}

type ExportUseCase interface {
	Text(ctx context.Context, jobID string) (*Export, error)
}

type exportUC struct {
	jobs JobRegistry
}

func NewExportUseCase(jobs JobRegistry) *exportUC {
	return &exportUC{jobs: jobs}
}

// Text renders the completed units in index order. It fails with
// domain.ErrNotFound when the job is unknown or has no completed unit.
func (e *exportUC) Text(ctx context.Context, jobID string) (*Export, error) {
	view, err := e.jobs.View(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job := view.Job

	done := make([]*model.WorkUnit, 0, len(view.Units))
	for _, u := range view.Units {
		if u.Status == model.UnitStatusCompleted {
			done = append(done, u)
		}
	}
	if len(done) == 0 {
		return nil, fmt.Errorf("%w: no completed pages for %s", domain.ErrNotFound, jobID)
	}
	sort.Slice(done, func(i, j int) bool { return done[i].Index < done[j].Index })

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Description: %s\n\n", job.Description)
	b.WriteString("=====================================\n\n")
	for _, u := range done {
		fmt.Fprintf(&b, "## Page %d: %s\n\n%s\n\n", u.Index+1, u.Title, u.Content)
		b.WriteString("-------------------------------------\n\n")
	}
	if job.Status != model.JobStatusCompleted {
		fmt.Fprintf(&b, "\nWARNING: this ebook may be incomplete. Status: %s. Completed pages: %d/%d.\n",
			job.Status, len(done), job.TotalUnits)
	}

	return &Export{
		Filename: SanitizeFilename(job.Title) + ".txt",
		Body:     b.String(),
		Status:   job.Status,
		Pages:    len(done),
	}, nil
}

func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "ebook"
	}
	return unsafeFilename.ReplaceAllString(name, "_")
}
