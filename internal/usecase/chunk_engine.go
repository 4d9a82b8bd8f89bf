// File: internal/usecase/chunk_engine.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/adapter"
	"ebook-queue/internal/domain/ports/repository"
	"ebook-queue/internal/infra/logging"
	"ebook-queue/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ChunkEngine = (*chunkEngineUC)(nil)

const (
	// tail of the already written unit text shown to the model when continuing
	continuationChars = 800
	// partial streams are persisted each time they grow by this much
	partialWriteStep = 200
)

// ChunkResult is the outcome of generating one unit.
type ChunkResult struct {
	Content        string
	Chunks         int
	Reused         int // chunks taken from the cache as final text
	FailedAttempts int // failed Generator calls across all chunks
	Placeholders   int // chunks that degraded to the placeholder text
}

type ChunkEngine interface {
	// GenerateUnitContent builds the unit content chunk by chunk. Per-chunk failures
	// degrade to placeholder text; the only errors returned are a configuration error
	// (domain.ErrGeneratorUnavailable), cancellation, and a *domain.GenerationError when
	// every chunk degraded. The result is non-nil whenever chunks were attempted.
	GenerateUnitContent(ctx context.Context, job *model.Job, unit *model.WorkUnit, titles []string) (*ChunkResult, error)
}

type ChunkEngineConfig struct {
	Policy             RetryPolicy
	MinChunkLength     int
	FallbackTokenRatio float64
}

type chunkEngineUC struct {
	gen   adapter.Generator
	cache repository.ChunkCache
	cfg   ChunkEngineConfig
	log   *zerolog.Logger
}

func NewChunkEngine(gen adapter.Generator, cache repository.ChunkCache, cfg ChunkEngineConfig, logger *zerolog.Logger) *chunkEngineUC {
	if cfg.MinChunkLength <= 0 {
		cfg.MinChunkLength = 40
	}
	if cfg.FallbackTokenRatio <= 0 || cfg.FallbackTokenRatio > 1 {
		cfg.FallbackTokenRatio = 0.5
	}
	l := logger.With().Str("component", "ChunkEngine").Logger()
	return &chunkEngineUC{gen: gen, cache: cache, cfg: cfg, log: &l}
}

// chunkJob is everything needed to produce one chunk.
type chunkJob struct {
	job    *model.Job
	unit   *model.WorkUnit
	titles []string
	mode   model.ModeSpec
	index  int
	total  int
	prior  []string
}

func (e *chunkEngineUC) GenerateUnitContent(ctx context.Context, job *model.Job, unit *model.WorkUnit, titles []string) (*ChunkResult, error) {
	ctx = logging.WithUnit(ctx, job.ID, unit.Index)
	log := logging.With(ctx, e.log)
	defer logging.TraceDuration(log, "ChunkEngine.GenerateUnitContent")()

	mode := job.ContentMode.Spec()
	res := &ChunkResult{Chunks: mode.Chunks}
	parts := make([]string, 0, mode.Chunks)
	var lastErr error

	for i := 0; i < mode.Chunks; i++ {
		if text, ok := e.cachedFinal(ctx, log, job.ID, unit.Index, i); ok {
			parts = append(parts, text)
			res.Reused++
			continue
		}

		cj := chunkJob{job: job, unit: unit, titles: titles, mode: mode, index: i, total: mode.Chunks, prior: parts}
		text, failed, err := e.generateChunk(ctx, log, cj)
		res.FailedAttempts += failed
		if err != nil {
			if errors.Is(err, domain.ErrGeneratorUnavailable) || ctx.Err() != nil {
				return res, err
			}
			lastErr = err
			text = e.salvage(ctx, log, cj, res)
		}
		parts = append(parts, text)
	}

	res.Content = strings.Join(parts, "\n\n")
	if res.Placeholders == mode.Chunks {
		return res, &domain.GenerationError{JobID: job.ID, UnitIndex: unit.Index, Chunk: -1, Err: lastErr}
	}
	return res, nil
}

// salvage runs after a chunk exhausted its retries: cached partial, then the
// reduced fallback, then the placeholder.
func (e *chunkEngineUC) salvage(ctx context.Context, log *zerolog.Logger, cj chunkJob, res *ChunkResult) string {
	jobID, unit := cj.job.ID, cj.unit.Index

	if entry, err := e.cache.Get(ctx, jobID, unit, cj.index); err == nil && e.viable(entry.Partial) {
		log.Warn().Int("chunk", cj.index).Int("chars", len(entry.Partial)).Msg("using cached partial after retries")
		e.storeFinal(ctx, log, jobID, unit, cj.index, entry.Partial)
		return strings.TrimSpace(entry.Partial)
	}

	budget := int(float64(cj.mode.MaxTokens/cj.mode.Chunks) * e.cfg.FallbackTokenRatio)
	if budget < 1 {
		budget = 1
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.Policy.AttemptTimeout(1))
	text, err := e.gen.Generate(fctx, fallbackPrompt(cj), budget, nil)
	cancel()
	if err == nil && strings.TrimSpace(text) != "" {
		metrics.IncGenerationAttempt("fallback_ok")
		log.Warn().Int("chunk", cj.index).Msg("chunk produced by reduced fallback")
		text = strings.TrimSpace(text)
		e.storeFinal(ctx, log, jobID, unit, cj.index, text)
		return text
	}
	metrics.IncGenerationAttempt("fallback_error")
	res.FailedAttempts++

	metrics.IncPlaceholder()
	res.Placeholders++
	log.Error().Err(err).Int("chunk", cj.index).Msg("chunk degraded to placeholder")
	// not cached, so a later run of the unit tries the chunk again
	return placeholder(cj.unit.Title)
}

// generateChunk returns the chunk text and the number of failed attempts.
func (e *chunkEngineUC) generateChunk(ctx context.Context, log *zerolog.Logger, cj chunkJob) (string, int, error) {
	jobID, unit := cj.job.ID, cj.unit.Index
	prompt := chunkPrompt(cj)
	budget := cj.mode.MaxTokens / cj.mode.Chunks

	failed := 0
	var out string
	err := e.cfg.Policy.Do(ctx, func(actx context.Context, attempt int) error {
		written := 0
		onPartial := func(text string) {
			if len(text)-written < partialWriteStep {
				return
			}
			written = len(text)
			// outer ctx: a partial must survive the attempt timing out
			if err := e.cache.PutPartial(ctx, jobID, unit, cj.index, text); err != nil {
				log.Debug().Err(err).Int("chunk", cj.index).Msg("partial not cached")
			}
		}
		start := time.Now()
		text, err := e.gen.Generate(actx, prompt, budget, onPartial)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("generator returned empty text")
		}
		if err != nil {
			// keep whatever streamed before the failure
			if written == 0 && strings.TrimSpace(text) != "" {
				_ = e.cache.PutPartial(ctx, jobID, unit, cj.index, text)
			}
			return err
		}
		metrics.IncGenerationAttempt("ok")
		log.Debug().Int("chunk", cj.index).Int("attempt", attempt).
			Dur("took", time.Since(start)).Msg("chunk generated")
		out = strings.TrimSpace(text)
		return nil
	}, func(attempt int, err error) {
		failed++
		metrics.IncGenerationAttempt("error")
		log.Warn().Err(err).Int("chunk", cj.index).Int("attempt", attempt).Msg("chunk attempt failed")
	})
	if err != nil {
		return "", failed, &domain.GenerationError{JobID: jobID, UnitIndex: unit, Chunk: cj.index, Err: err}
	}
	e.storeFinal(ctx, log, jobID, unit, cj.index, out)
	return out, failed, nil
}

func (e *chunkEngineUC) cachedFinal(ctx context.Context, log *zerolog.Logger, jobID string, unit, chunk int) (string, bool) {
	entry, err := e.cache.Get(ctx, jobID, unit, chunk)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncChunkCacheLookup("miss")
		return "", false
	case err != nil:
		log.Warn().Err(err).Int("chunk", chunk).Msg("chunk cache read failed; regenerating")
		metrics.IncChunkCacheLookup("error")
		return "", false
	case !e.viable(entry.Final):
		metrics.IncChunkCacheLookup("miss")
		return "", false
	}
	metrics.IncChunkCacheLookup("hit")
	return entry.Final, true
}

func (e *chunkEngineUC) storeFinal(ctx context.Context, log *zerolog.Logger, jobID string, unit, chunk int, text string) {
	if err := e.cache.PutFinal(ctx, jobID, unit, chunk, text); err != nil {
		log.Warn().Err(err).Int("chunk", chunk).Msg("chunk not cached")
	}
}

func (e *chunkEngineUC) viable(s string) bool {
	return len(strings.TrimSpace(s)) >= e.cfg.MinChunkLength
}

// ---- prompts ----

func tableOfContents(titles []string, current int) string {
	var b strings.Builder
	for i, t := range titles {
		fmt.Fprintf(&b, "%d. %s", i+1, t)
		if i == current {
			b.WriteString("  <-- YOU ARE HERE")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func chunkPrompt(cj chunkJob) string {
	page := cj.unit.Index + 1
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert writer producing the content of an ebook.\n")
	fmt.Fprintf(&b, "Ebook title: %q\nDescription: %q\n\n", cj.job.Title, cj.job.Description)
	fmt.Fprintf(&b, "Table of contents:\n%s\n", tableOfContents(cj.titles, cj.unit.Index))
	fmt.Fprintf(&b, "Write the content for page %d only, titled %q.\n", page, cj.unit.Title)
	if cj.total > 1 {
		fmt.Fprintf(&b, "The page is written in %d parts; write part %d.\n", cj.total, cj.index+1)
	}
	if len(cj.prior) > 0 {
		prev := strings.Join(cj.prior, "\n\n")
		if len(prev) > continuationChars {
			prev = "..." + prev[len(prev)-continuationChars:]
		}
		fmt.Fprintf(&b, "Continue coherently from the text already written for this page, without repeating it:\n\"\"\"\n%s\n\"\"\"\n", prev)
	}
	b.WriteString("\nGuidelines:\n")
	b.WriteString("1. Stay strictly on the topic of this page title.\n")
	b.WriteString("2. Do not repeat material that other pages in the table of contents cover.\n")
	fmt.Fprintf(&b, "3. %s", cj.mode.PromptSuffix)
	if cj.total > 1 {
		fmt.Fprintf(&b, " This part is about 1/%d of the page.", cj.total)
	}
	b.WriteString("\n4. Do not include the page title or page number.\n")
	switch {
	case cj.index == 0:
		b.WriteString("5. Go straight to the point; no generic introduction.\n")
	case cj.index == cj.total-1:
		b.WriteString("5. Bring the page to a natural close; no generic conclusion.\n")
	}
	fmt.Fprintf(&b, "\nContent of page %d:", page)
	return b.String()
}

func fallbackPrompt(cj chunkJob) string {
	return fmt.Sprintf("Write one short plain-text paragraph about %q for the ebook %q.", cj.unit.Title, cj.job.Title)
}

func placeholder(title string) string {
	return fmt.Sprintf("[Content for %q could not be generated at this time.]", title)
}
