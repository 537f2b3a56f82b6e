package openai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Tokenizer counts tokens for history budgeting. When the BPE ranks cannot
// be loaded it falls back to a four-characters-per-token estimate.
type Tokenizer struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

// NewTokenizer returns a tokenizer for the cl100k_base encoding.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{encoding: defaultEncoding}
}

func (t *Tokenizer) load() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			debugLog.Warnf("Failed to load %s encoding, estimating tokens: %v", t.encoding, err)
			return
		}
		t.enc = enc
	})
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.load()
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}
