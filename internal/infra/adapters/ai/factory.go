package ai

import (
	"context"
	"fmt"
	"strings"

	"ebook-queue/internal/config"
	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// NewFromConfig builds every provider that has credentials, routes the default
// model through them and applies the concurrency cap.
func NewFromConfig(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.Generator, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "noop" {
		logger.Warn().Msg("using noop generator; content is filler text")
		return NewLimitedGenerator(NewNoopGenerator(), cfg.ConcurrentLimit), nil
	}

	byProvider := map[string]adapter.Generator{}
	if cfg.OpenAIKey != "" {
		g, err := NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		byProvider["openai"] = g
	}
	if cfg.GeminiKey != "" {
		model := cfg.DefaultModel
		if !strings.HasPrefix(strings.ToLower(model), "gemini") {
			model = ""
		}
		g, err := NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, model)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		byProvider["gemini"] = g
	}
	if len(byProvider) == 0 {
		return nil, fmt.Errorf("%w: no AI provider credentials configured", domain.ErrGeneratorUnavailable)
	}

	multi, err := NewMultiGenerator(provider, cfg.DefaultModel, byProvider, nil)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("provider", multi.Name()).Str("model", cfg.DefaultModel).
		Int("concurrent_limit", cfg.ConcurrentLimit).Msg("generator ready")
	return NewLimitedGenerator(multi, cfg.ConcurrentLimit), nil
}
