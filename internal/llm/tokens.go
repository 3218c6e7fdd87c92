package llm

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter measures prompt size. Without an encoding (for instance when
// the BPE ranks cannot be loaded offline) it falls back to a rune estimate.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return &TokenCounter{}, err
	}
	return &TokenCounter{enc: enc}, nil
}

func (c *TokenCounter) Count(text string) int {
	if c == nil || c.enc == nil {
		// Roughly four characters per token for English text.
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
