//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/adapter"
	"ebook-queue/internal/infra/memstore"
	"ebook-queue/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func fastPolicy() usecase.RetryPolicy {
	return usecase.RetryPolicy{
		Attempts:          4,
		BaseTimeout:       time.Second,
		TimeoutMultiplier: 1.5,
		MaxTimeout:        2 * time.Second,
		BaseDelay:         time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
	}
}

var (
	pageRe = regexp.MustCompile(`page (\d+) only`)
	partRe = regexp.MustCompile(`write part (\d+)`)
)

// call describes one Generate invocation as seen by scriptGen.
type call struct {
	Page     int // 1-based, 0 for prompts that are not chunk prompts
	Part     int // 1-based
	Fallback bool
	Prompt   string
}

func parseCall(prompt string) call {
	c := call{Prompt: prompt, Part: 1}
	if m := pageRe.FindStringSubmatch(prompt); m != nil {
		c.Page, _ = strconv.Atoi(m[1])
	}
	if m := partRe.FindStringSubmatch(prompt); m != nil {
		c.Part, _ = strconv.Atoi(m[1])
	}
	c.Fallback = regexp.MustCompile(`^Write one short plain-text paragraph`).MatchString(prompt)
	return c
}

// scriptGen answers through fn and records every call.
type scriptGen struct {
	mu    sync.Mutex
	calls []call
	fn    func(c call, n int) (string, error) // n: 1-based count of calls with the same (page, part, fallback)
}

var _ adapter.Generator = (*scriptGen)(nil)

func (g *scriptGen) Name() string { return "script" }

func (g *scriptGen) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	c := parseCall(prompt)
	g.mu.Lock()
	n := 1
	for _, prev := range g.calls {
		if prev.Page == c.Page && prev.Part == c.Part && prev.Fallback == c.Fallback {
			n++
		}
	}
	g.calls = append(g.calls, c)
	g.mu.Unlock()
	if g.fn == nil {
		return okText(c), nil
	}
	return g.fn(c, n)
}

func (g *scriptGen) count(page, part int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Page == page && c.Part == part && !c.Fallback {
			n++
		}
	}
	return n
}

func (g *scriptGen) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func okText(c call) string {
	return "Generated text for page " + strconv.Itoa(c.Page) + " part " + strconv.Itoa(c.Part) +
		". It is long enough to be considered a viable chunk by the engine."
}

type fixture struct {
	store    *memstore.Store
	queue    *memstore.Queue
	cache    *memstore.ChunkCache
	states   usecase.UnitStateMachine
	registry usecase.JobRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	q := store.Queue("pages")
	states := usecase.NewUnitStateMachine(store, newTestLogger())
	return &fixture{
		store:    store,
		queue:    q,
		cache:    memstore.NewChunkCache(),
		states:   states,
		registry: usecase.NewJobRegistry(store, q, "pages", states, newTestLogger()),
	}
}

func (f *fixture) createJob(t *testing.T, mode model.ContentMode, titles ...string) *model.Job {
	t.Helper()
	job, err := f.registry.CreateJob(context.Background(), usecase.CreateJobInput{
		Title:       "Learning Go",
		Description: "A practical book",
		ContentMode: string(mode),
		UnitTitles:  titles,
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) engine(gen adapter.Generator) usecase.ChunkEngine {
	return usecase.NewChunkEngine(gen, f.cache, usecase.ChunkEngineConfig{
		Policy:             fastPolicy(),
		MinChunkLength:     40,
		FallbackTokenRatio: 0.5,
	}, newTestLogger())
}
