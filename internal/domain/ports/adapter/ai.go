package adapter

import "context"

// PartialFunc receives the accumulated text of a streaming generation.
type PartialFunc func(text string)

// Usage for a single generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator is the port for text generation.
type Generator interface {
	// Generate returns the produced text. When onPartial is non-nil it is called
	// with the accumulated output as it streams, so callers can persist partial work.
	// Errors wrapping domain.ErrGeneratorUnavailable are not worth retrying.
	Generate(ctx context.Context, prompt string, maxTokens int, onPartial PartialFunc) (string, error)
	Name() string
}
