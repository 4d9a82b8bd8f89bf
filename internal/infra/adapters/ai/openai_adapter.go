package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/adapter"
	"ebook-queue/internal/infra/metrics"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.Generator = (*OpenAIAdapter)(nil)

// OpenAIAdapter streams Chat Completions. A non-default base URL points it at any
// OpenAI-compatible gateway.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	tokens *tokenCounter
}

func NewOpenAIAdapter(apiKey, baseURL, model string) (*OpenAIAdapter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: openai api key empty", domain.ErrGeneratorUnavailable)
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{}),
		// retries belong to the chunk engine
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  model,
		tokens: newTokenCounter(model),
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Generate(ctx context.Context, prompt string, maxTokens int, onPartial adapter.PartialFunc) (string, error) {
	start := time.Now()
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		StreamOptions: openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)},
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var b strings.Builder
	var usage adapter.Usage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = adapter.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		b.WriteString(chunk.Choices[0].Delta.Content)
		if onPartial != nil {
			onPartial(b.String())
		}
	}
	text := b.String()
	err := stream.Err()

	if usage.PromptTokens == 0 {
		usage.PromptTokens = o.tokens.count(prompt)
		usage.CompletionTokens = o.tokens.count(text)
	}
	metrics.ObserveGeneration(o.Name(), o.model, usage.PromptTokens, usage.CompletionTokens,
		int(time.Since(start).Milliseconds()), err == nil)

	if err != nil {
		// the partial text goes back with the error so callers can keep it
		return text, mapOpenAIError(err)
	}
	return text, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: openai http %d", domain.ErrGeneratorUnavailable, apiErr.StatusCode)
		}
		return fmt.Errorf("openai http %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai: %w", err)
}
