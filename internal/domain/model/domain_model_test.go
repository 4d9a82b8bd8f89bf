//go:build !integration

package model

import (
	"testing"
	"time"
)

// --- Job status derivation ---

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name   string
		counts UnitCounts
		total  int
		want   JobStatus
	}{
		{"all queued", UnitCounts{Queued: 3}, 3, JobStatusQueued},
		{"one processing", UnitCounts{Queued: 2, Processing: 1}, 3, JobStatusProcessing},
		{"some done some queued", UnitCounts{Queued: 1, Completed: 2}, 3, JobStatusProcessing},
		{"all completed", UnitCounts{Completed: 3}, 3, JobStatusCompleted},
		{"all failed", UnitCounts{Failed: 3}, 3, JobStatusFailed},
		{"mixed terminal", UnitCounts{Completed: 2, Failed: 1}, 3, JobStatusPartial},
		{"failed with one still running", UnitCounts{Failed: 2, Processing: 1}, 3, JobStatusProcessing},
		{"empty job", UnitCounts{}, 0, JobStatusProcessing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.counts, tc.total); got != tc.want {
				t.Errorf("DeriveStatus(%+v, %d) = %s, want %s", tc.counts, tc.total, got, tc.want)
			}
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusPartial} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing} {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestNewJob(t *testing.T) {
	now := time.Now()
	job := NewJob("j1", "Title", "Desc", ContentModeFull, 4, now)

	if job.Status != JobStatusQueued {
		t.Errorf("expected queued status, got %s", job.Status)
	}
	if job.Counts != (UnitCounts{Queued: 4}) {
		t.Errorf("expected all units queued, got %+v", job.Counts)
	}
	if !job.Consistent() {
		t.Error("a new job must be consistent")
	}
	job.Counts = job.Counts.Add(UnitStatusQueued, -1)
	if job.Consistent() {
		t.Error("expected a job missing one count to be inconsistent")
	}
}

// --- Unit transitions ---

func TestCanTransition(t *testing.T) {
	legalPairs := [][2]UnitStatus{
		{UnitStatusQueued, UnitStatusProcessing},
		{UnitStatusQueued, UnitStatusFailed},
		{UnitStatusProcessing, UnitStatusCompleted},
		{UnitStatusProcessing, UnitStatusFailed},
		{UnitStatusFailed, UnitStatusQueued},
	}
	illegalPairs := [][2]UnitStatus{
		{UnitStatusQueued, UnitStatusCompleted},
		{UnitStatusQueued, UnitStatusQueued},
		{UnitStatusProcessing, UnitStatusQueued},
		{UnitStatusProcessing, UnitStatusProcessing},
		{UnitStatusCompleted, UnitStatusQueued},
		{UnitStatusCompleted, UnitStatusFailed},
		{UnitStatusFailed, UnitStatusCompleted},
		{UnitStatus("bogus"), UnitStatusQueued},
	}
	for _, p := range legalPairs {
		if !CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be legal", p[0], p[1])
		}
	}
	for _, p := range illegalPairs {
		if CanTransition(p[0], p[1]) {
			t.Errorf("expected %s -> %s to be rejected", p[0], p[1])
		}
	}
}

func TestCountUnits(t *testing.T) {
	units := []*WorkUnit{
		{Status: UnitStatusQueued},
		{Status: UnitStatusCompleted},
		{Status: UnitStatusCompleted},
		{Status: UnitStatusFailed},
	}
	got := CountUnits(units)
	want := UnitCounts{Queued: 1, Completed: 2, Failed: 1}
	if got != want {
		t.Fatalf("CountUnits = %+v, want %+v", got, want)
	}
	if got.Sum() != len(units) {
		t.Errorf("expected sum %d, got %d", len(units), got.Sum())
	}
}

// --- Content modes ---

func TestParseContentMode(t *testing.T) {
	t.Run("empty selects the default", func(t *testing.T) {
		m, err := ParseContentMode("  ")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if m != ContentModeMedium {
			t.Errorf("expected MEDIUM, got %s", m)
		}
	})
	t.Run("case insensitive", func(t *testing.T) {
		m, err := ParseContentMode("ultra_minimal")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if m != ContentModeUltraMinimal {
			t.Errorf("expected ULTRA_MINIMAL, got %s", m)
		}
	})
	t.Run("unknown mode", func(t *testing.T) {
		if _, err := ParseContentMode("EPIC"); err == nil {
			t.Fatal("expected an error for an unknown mode")
		}
	})
}

func TestContentModeSpec(t *testing.T) {
	want := map[ContentMode][2]int{ // tokens, chunks
		ContentModeFull:         {600, 4},
		ContentModeMedium:       {450, 3},
		ContentModeMinimal:      {300, 2},
		ContentModeUltraMinimal: {150, 1},
	}
	for _, m := range ContentModes() {
		s := m.Spec()
		if s.MaxTokens != want[m][0] || s.Chunks != want[m][1] {
			t.Errorf("%s: got %d tokens / %d chunks, want %v", m, s.MaxTokens, s.Chunks, want[m])
		}
	}
	if ContentMode("LEGACY").Spec().Chunks != 3 {
		t.Error("unknown modes should fall back to MEDIUM")
	}
	if ContentModeMedium.ChunkTokens() != 150 {
		t.Errorf("expected 150 tokens per MEDIUM chunk, got %d", ContentModeMedium.ChunkTokens())
	}
}

// --- Archive snapshot ---

func TestNewArchivedEbook(t *testing.T) {
	now := time.Now()
	job := NewJob("j1", "Book", "About things", ContentModeMinimal, 3, now)
	job.Counts = UnitCounts{Completed: 2, Failed: 1}
	units := []*WorkUnit{
		{Index: 0, Title: "One", Status: UnitStatusCompleted, Content: "first"},
		{Index: 1, Title: "Two", Status: UnitStatusFailed, Error: "boom"},
		{Index: 2, Title: "Three", Status: UnitStatusCompleted, Content: "third"},
	}

	a := NewArchivedEbook(job, units, now)
	if a.Status != JobStatusPartial {
		t.Errorf("expected partial status, got %s", a.Status)
	}
	if a.CompletedPages != 2 || len(a.Pages) != 2 {
		t.Fatalf("expected 2 archived pages, got %d (%d)", a.CompletedPages, len(a.Pages))
	}
	if a.Pages[1].Index != 2 || a.Pages[1].Content != "third" {
		t.Errorf("unexpected second page %+v", a.Pages[1])
	}
	if a.TotalPages != 3 {
		t.Errorf("expected total 3, got %d", a.TotalPages)
	}
}
