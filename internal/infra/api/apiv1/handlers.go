package apiv1

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/infra/logging"
	"ebook-queue/internal/infra/worker"
	"ebook-queue/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type createEbookRequest struct {
	Title       string   `json:"title" validate:"required,max=300"`
	Description string   `json:"description" validate:"max=5000"`
	ContentMode string   `json:"contentMode"`
	PageTitles  []string `json:"pageTitles" validate:"omitempty,max=500"`
	PageCount   int      `json:"pageCount" validate:"omitempty,min=1,max=100"`
}

type ebookState struct {
	EbookID string            `json:"ebookId"`
	State   *model.Job        `json:"state"`
	Pages   []*model.WorkUnit `json:"pages,omitempty"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Reason: "malformed JSON body"}
	}
	return nil
}

// POST /api/v1/ebooks
func (s *Server) createEbook(w http.ResponseWriter, r *http.Request) {
	if !s.allowCreate(w, r) {
		return
	}
	var req createEbookRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, validationFailure(err))
		return
	}

	ctx := r.Context()
	titles := req.PageTitles
	if len(titles) == 0 {
		count := req.PageCount
		if count == 0 {
			count = defaultPageCount
		}
		if strings.TrimSpace(req.Description) == "" {
			desc, err := s.deps.Outline.GenerateDescription(ctx, req.Title)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			req.Description = desc
		}
		out, err := s.deps.Outline.GenerateOutline(ctx, req.Title, req.Description, count)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		titles = out
	}

	job, err := s.deps.Registry.CreateJob(ctx, usecase.CreateJobInput{
		Title:       req.Title,
		Description: req.Description,
		ContentMode: req.ContentMode,
		UnitTitles:  titles,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/ebooks/"+job.ID)
	writeJSON(w, http.StatusCreated, ebookState{EbookID: job.ID, State: job})
}

func (s *Server) allowCreate(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.Limiter == nil || s.deps.CreateLimit <= 0 {
		return true
	}
	ok, err := s.deps.Limiter.Allow(r.Context(), "create", clientAddr(r), s.deps.CreateLimit, s.deps.CreateWindow)
	if err != nil {
		// an unreachable limiter does not block job creation
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.deps.CreateWindow.Seconds())))
		writeError(w, r, http.StatusTooManyRequests, "too many ebooks requested; retry later")
		return false
	}
	return true
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GET /api/v1/ebooks/{id}
func (s *Server) getEbook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := s.deps.Registry.View(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ebookState{EbookID: id, State: view.Job, Pages: view.Units})
}

// GET /api/v1/ebooks/{id}/download
func (s *Server) downloadEbook(w http.ResponseWriter, r *http.Request) {
	exp, err := s.deps.Export.Text(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.Header().Set("X-Ebook-Status", string(exp.Status))
	w.Header().Set("X-Ebook-Pages", strconv.Itoa(exp.Pages))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, exp.Body)
}

// POST /api/v1/ebooks/{id}/pages/{index}/requeue
func (s *Server) requeuePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		s.fail(w, r, &domain.ValidationError{Field: "index", Reason: "must be a non-negative integer"})
		return
	}
	unit, err := s.deps.Registry.Requeue(r.Context(), id, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"unit": unit})
}

// POST /api/v1/worker/run?count=N
func (s *Server) runWorker(w http.ResponseWriter, r *http.Request) {
	n := defaultDrain
	if raw := r.URL.Query().Get("count"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.fail(w, r, &domain.ValidationError{Field: "count", Reason: "must be a positive integer"})
			return
		}
		n = v
	}
	if n > s.deps.MaxDrain {
		n = s.deps.MaxDrain
	}
	// detached: a caller hanging up must not interrupt a claimed unit
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.deps.DrainTimeout*time.Duration(n))
	defer cancel()
	results, err := s.deps.Worker.Drain(ctx, n)
	if err != nil && len(results) == 0 {
		s.fail(w, r, err)
		return
	}
	if results == nil {
		results = []worker.Result{}
	}
	body := map[string]any{"processed": len(results), "results": results}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

// POST /api/v1/descriptions
func (s *Server) createDescription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title" validate:"required,max=300"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, validationFailure(err))
		return
	}
	desc, err := s.deps.Outline.GenerateDescription(r.Context(), req.Title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": desc})
}

// GET /api/v1/library?limit=&offset=
func (s *Server) listLibrary(w http.ResponseWriter, r *http.Request) {
	if !s.libraryEnabled(w, r) {
		return
	}
	limit, offset, err := paging(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := s.deps.Library.List(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*model.ArchivedEbook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

// GET /api/v1/library/{id}
func (s *Server) getLibraryEbook(w http.ResponseWriter, r *http.Request) {
	if !s.libraryEnabled(w, r) {
		return
	}
	ebook, err := s.deps.Library.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ebook)
}

func (s *Server) libraryEnabled(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.Library == nil || !s.deps.Library.Enabled() {
		s.fail(w, r, domain.ErrArchiveDisabled)
		return false
	}
	return true
}

func paging(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit, offset := defaultPageSize, 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, &domain.ValidationError{Field: "offset", Reason: "must be a non-negative integer"}
		}
		offset = v
	}
	return limit, offset, nil
}
