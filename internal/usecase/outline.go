// File: internal/usecase/outline.go
package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ OutlineUseCase = (*outlineUC)(nil)

const descriptionTokens = 300

var outlineLine = regexp.MustCompile(`(?m)^\s*\d+\.\s*(.+?)\s*$`)

// genericTitles pad an outline the model returned short.
var genericTitles = []string{
	"Introduction to the Topic",
	"Historical Context",
	"Core Concepts",
	"Main Challenges",
	"Effective Strategies",
	"Practical Applications",
	"Case Studies",
	"Tools and Resources",
	"Future Trends",
	"Final Considerations",
}

// OutlineUseCase drafts the inputs of a job: a description and the page titles.
type OutlineUseCase interface {
	GenerateDescription(ctx context.Context, title string) (string, error)
	GenerateOutline(ctx context.Context, title, description string, pageCount int) ([]string, error)
}

type outlineUC struct {
	gen    adapter.Generator
	policy RetryPolicy
	log    *zerolog.Logger
}

func NewOutlineUseCase(gen adapter.Generator, policy RetryPolicy, logger *zerolog.Logger) *outlineUC {
	l := logger.With().Str("component", "OutlineUseCase").Logger()
	return &outlineUC{gen: gen, policy: policy, log: &l}
}

func (o *outlineUC) GenerateDescription(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &domain.ValidationError{Field: "title", Reason: "is required"}
	}
	prompt := fmt.Sprintf("Write a short, engaging description for an ebook titled %q. "+
		"Use 100 to 150 words and explain what the reader will learn, who the ebook is for, "+
		"and the main benefits of reading it.", title)
	text, err := o.call(ctx, prompt, descriptionTokens)
	if err != nil {
		return "", fmt.Errorf("generate description: %w", err)
	}
	return text, nil
}

func (o *outlineUC) GenerateOutline(ctx context.Context, title, description string, pageCount int) ([]string, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &domain.ValidationError{Field: "title", Reason: "is required"}
	}
	if pageCount < 1 || pageCount > 500 {
		return nil, &domain.ValidationError{Field: "pageCount", Reason: "must be between 1 and 500"}
	}
	prompt := fmt.Sprintf(`Create a simple outline for an ebook of exactly %d pages titled %q with this description:

%q

Return a numbered list of exactly %d pages, each with a short, specific title.
The first pages introduce the topic, the middle pages cover the main content in logical chapters,
and the last pages hold the conclusion and final thoughts.

Expected format:
1. [Title of page 1]
2. [Title of page 2]
...
%d. [Title of page %d]`, pageCount, title, description, pageCount, pageCount, pageCount)

	text, err := o.call(ctx, prompt, 1000+pageCount*10)
	if err != nil {
		return nil, fmt.Errorf("generate outline: %w", err)
	}
	titles := ParseOutline(text, pageCount)
	if n := countPlaceholders(titles); n > 0 {
		o.log.Warn().Int("parsed", pageCount-n).Int("wanted", pageCount).Msg("outline padded with generic titles")
	}
	return titles, nil
}

func (o *outlineUC) call(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var out string
	err := o.policy.Do(ctx, func(actx context.Context, _ int) error {
		text, err := o.gen.Generate(actx, prompt, maxTokens, nil)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: empty response", domain.ErrGeneration)
		}
		out = strings.TrimSpace(text)
		return nil
	}, nil)
	return out, err
}

// ParseOutline extracts "N. title" lines, truncates to pageCount and pads with
// generic titles marked "(Placeholder)".
func ParseOutline(text string, pageCount int) []string {
	titles := make([]string, 0, pageCount)
	for _, m := range outlineLine.FindAllStringSubmatch(text, -1) {
		if len(titles) == pageCount {
			break
		}
		t := strings.Trim(strings.TrimSpace(m[1]), "*\"[]")
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	for len(titles) < pageCount {
		idx := (len(titles) - (pageCount - len(genericTitles))) % len(genericTitles)
		if idx < 0 {
			idx = 0
		}
		titles = append(titles, genericTitles[idx]+" (Placeholder)")
	}
	return titles
}

func countPlaceholders(titles []string) int {
	n := 0
	for _, t := range titles {
		if strings.HasSuffix(t, " (Placeholder)") {
			n++
		}
	}
	return n
}
