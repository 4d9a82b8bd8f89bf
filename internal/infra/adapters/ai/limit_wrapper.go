package ai

import (
	"context"

	"ebook-queue/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Generator = (*limitedGenerator)(nil)

type limitedGenerator struct {
	inner adapter.Generator
	sem   chan struct{}
}

// NewLimitedGenerator caps in-flight Generate calls across all workers of the
// process. A waiting caller gives up when its context ends.
func NewLimitedGenerator(inner adapter.Generator, maxConcurrent int) adapter.Generator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedGenerator{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedGenerator) Name() string { return l.inner.Name() }

func (l *limitedGenerator) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, prompt, maxTokens, onPartial)
}
