package ai_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/adapter"
	ai "ebook-queue/internal/infra/adapters/ai"
)

type stubGen struct {
	name  string
	calls int
}

func (s *stubGen) Name() string { return s.name }
func (s *stubGen) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	s.calls++
	return s.name, nil
}

func TestRouting_ExplicitMap_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubGen{name: "openai"}
	gem := &stubGen{name: "gemini"}
	both := map[string]adapter.Generator{"openai": open, "gemini": gem}
	explicit := map[string]string{"custom-x": "gemini"}

	cases := []struct {
		model string
		want  string
	}{
		{"custom-x", "gemini"},    // explicit map wins
		{"gpt-4o-mini", "openai"}, // gpt-* -> openai
		{"gemini-1.5-flash", "gemini"},
		{"unknown", "openai"}, // default provider
	}
	for _, tc := range cases {
		m, err := ai.NewMultiGenerator("openai", tc.model, both, explicit)
		if err != nil {
			t.Fatalf("%s: %v", tc.model, err)
		}
		got, _ := m.Generate(ctx, "p", 10, nil)
		if got != tc.want || m.Name() != tc.want {
			t.Fatalf("model %s routed to %s, want %s", tc.model, got, tc.want)
		}
	}

	// provider missing -> first available
	m, err := ai.NewMultiGenerator("openai", "gpt-4o", map[string]adapter.Generator{"gemini": gem}, nil)
	if err != nil || m.Name() != "gemini" {
		t.Fatalf("expected fallback to gemini, got %v %v", m, err)
	}

	_, err = ai.NewMultiGenerator("openai", "gpt-4o", map[string]adapter.Generator{}, nil)
	if !errors.Is(err, domain.ErrGeneratorUnavailable) {
		t.Fatalf("expected ErrGeneratorUnavailable, got %v", err)
	}
}

type slowGen struct {
	inFlight, peak int32
}

func (s *slowGen) Name() string { return "slow" }
func (s *slowGen) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&s.inFlight, -1)
	return "ok", nil
}

func TestLimitedGenerator_CapsConcurrency(t *testing.T) {
	t.Parallel()
	inner := &slowGen{}
	g := ai.NewLimitedGenerator(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Generate(context.Background(), "p", 1, nil)
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&inner.peak); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", p)
	}
}

func TestLimitedGenerator_WaiterHonoursContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	inner := &blockingGen{release: block}
	g := ai.NewLimitedGenerator(inner, 1)

	go func() { _, _ = g.Generate(context.Background(), "p", 1, nil) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Generate(ctx, "p", 1, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(block)
}

type blockingGen struct{ release chan struct{} }

func (b *blockingGen) Name() string { return "blocking" }
func (b *blockingGen) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	<-b.release
	return "ok", nil
}

func TestNoopGenerator_StreamsPartials(t *testing.T) {
	t.Parallel()
	g := &ai.NoopGenerator{}
	var partials []string
	out, err := g.Generate(context.Background(), "prompt", 100, func(s string) { partials = append(partials, s) })
	if err != nil {
		t.Fatal(err)
	}
	if len(partials) == 0 || partials[len(partials)-1] == "" {
		t.Fatal("expected streamed partials")
	}
	if len(out) < len(partials[len(partials)-1]) {
		t.Fatal("final text shorter than last partial")
	}
}
