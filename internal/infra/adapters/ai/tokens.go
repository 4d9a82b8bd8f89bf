package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter estimates token counts when a provider omits usage. The BPE table
// loads lazily; if it cannot load, counts fall back to one token per four bytes.
type tokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func newTokenCounter(model string) *tokenCounter {
	return &tokenCounter{model: model}
}

func (t *tokenCounter) count(s string) int {
	if s == "" {
		return 0
	}
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		}
		if err == nil {
			t.enc = enc
		}
	})
	if t.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(t.enc.Encode(s, nil, nil))
}
