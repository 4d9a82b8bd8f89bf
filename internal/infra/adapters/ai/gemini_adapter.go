package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/adapter"
	"ebook-queue/internal/infra/metrics"
)

var _ adapter.Generator = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// NewGeminiAdapter creates a Gemini generator using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string) (*GeminiAdapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key empty", domain.ErrGeneratorUnavailable)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, model: model}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	start := time.Now()
	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}

	var b strings.Builder
	var usage adapter.Usage
	var streamErr error
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), cfg) {
		if err != nil {
			streamErr = err
			break
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
		}
		if t := candidateText(resp); t != "" {
			b.WriteString(t)
			if onPartial != nil {
				onPartial(b.String())
			}
		}
	}

	metrics.ObserveGeneration(g.Name(), g.model, usage.PromptTokens, usage.CompletionTokens,
		int(time.Since(start).Milliseconds()), streamErr == nil)
	if streamErr != nil {
		return b.String(), mapGeminiError(streamErr)
	}
	return b.String(), nil
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: gemini http %d", domain.ErrGeneratorUnavailable, apiErr.Code)
		}
		return fmt.Errorf("gemini http %d: %w", apiErr.Code, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
