package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ebook-queue/internal/domain/ports/adapter"
)

var _ adapter.Generator = (*NoopGenerator)(nil)

// NoopGenerator produces deterministic filler text for local runs and tests,
// streaming it word by word.
type NoopGenerator struct {
	Delay time.Duration
}

func NewNoopGenerator() *NoopGenerator {
	return &NoopGenerator{Delay: 50 * time.Millisecond}
}

func (n *NoopGenerator) Name() string { return "noop" }

func (n *NoopGenerator) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	select {
	case <-time.After(n.Delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	words := maxTokens * 3 / 4
	if words < 12 {
		words = 12
	}
	if words > 120 {
		words = 120
	}
	seed := strings.Fields(fmt.Sprintf("This placeholder text was produced locally without a language model for a prompt of %d characters.", len(prompt)))

	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(seed[i%len(seed)])
		if onPartial != nil && (i+1)%20 == 0 {
			onPartial(b.String())
		}
	}
	return b.String(), nil
}
