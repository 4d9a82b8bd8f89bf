// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"strings"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/adapter"
)

var _ adapter.Generator = (*MultiGenerator)(nil)

// MultiGenerator sends every call to the generator chosen for the configured model.
// The choice is made once; providers own their own default models.
type MultiGenerator struct {
	active adapter.Generator
}

// NewMultiGenerator resolves the provider for model: explicit mapping first, then
// the model name prefix, then defaultProvider, then any registered provider.
func NewMultiGenerator(
	defaultProvider string,
	model string,
	byProvider map[string]adapter.Generator,
	modelToProvider map[string]string,
) (*MultiGenerator, error) {
	prov := resolveProvider(model, strings.ToLower(defaultProvider), modelToProvider)
	if g := byProvider[prov]; g != nil {
		return &MultiGenerator{active: g}, nil
	}
	for _, g := range byProvider {
		if g != nil {
			return &MultiGenerator{active: g}, nil
		}
	}
	return nil, fmt.Errorf("%w: no generator configured for model %q", domain.ErrGeneratorUnavailable, model)
}

func resolveProvider(model, def string, modelToProvider map[string]string) string {
	if p := modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return def
	}
}

func (m *MultiGenerator) Name() string { return m.active.Name() }

func (m *MultiGenerator) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	return m.active.Generate(ctx, prompt, maxTokens, onPartial)
}
