package model

import (
	"fmt"
	"strings"
)

type ContentMode string

const (
	ContentModeFull         ContentMode = "FULL"
	ContentModeMedium       ContentMode = "MEDIUM"
	ContentModeMinimal      ContentMode = "MINIMAL"
	ContentModeUltraMinimal ContentMode = "ULTRA_MINIMAL"

	DefaultContentMode = ContentModeMedium
)

// ModeSpec is the token budget and chunking for a content mode.
type ModeSpec struct {
	Name         string
	MaxTokens    int
	Chunks       int
	PromptSuffix string
}

var modes = map[ContentMode]ModeSpec{
	ContentModeFull: {
		Name:         "Full",
		MaxTokens:    600,
		Chunks:       4,
		PromptSuffix: "Write detailed content of roughly 400-500 words.",
	},
	ContentModeMedium: {
		Name:         "Medium",
		MaxTokens:    450,
		Chunks:       3,
		PromptSuffix: "Write concise content of roughly 250-300 words.",
	},
	ContentModeMinimal: {
		Name:         "Minimal",
		MaxTokens:    300,
		Chunks:       2,
		PromptSuffix: "Write brief content of roughly 150-200 words.",
	},
	ContentModeUltraMinimal: {
		Name:         "Ultra minimal",
		MaxTokens:    150,
		Chunks:       1,
		PromptSuffix: "Write a single short paragraph of roughly 50-100 words.",
	},
}

// ContentModes returns the supported modes, densest first.
func ContentModes() []ContentMode {
	return []ContentMode{ContentModeFull, ContentModeMedium, ContentModeMinimal, ContentModeUltraMinimal}
}

// ParseContentMode is case-insensitive; empty input yields the default mode.
func ParseContentMode(s string) (ContentMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultContentMode, nil
	}
	m := ContentMode(s)
	if _, ok := modes[m]; !ok {
		return "", fmt.Errorf("unknown content mode %q", s)
	}
	return m, nil
}

// Spec returns the token budget, chunk count and length guidance of m, or
// those of MEDIUM when m is not a known mode.
func (m ContentMode) Spec() ModeSpec {
	if s, ok := modes[m]; ok {
		return s
	}
	return modes[DefaultContentMode]
}

// ChunkTokens is the per-chunk token budget.
func (m ContentMode) ChunkTokens() int {
	s := m.Spec()
	return s.MaxTokens / s.Chunks
}
