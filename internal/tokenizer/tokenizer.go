// Package tokenizer measures the prompt cost of generated tool documents.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"scenewire/internal/domain"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "cl100k_base"

// Approximate selects the offline byte-length estimator.
const Approximate = "approx"

// New returns a tokenizer for the named encoding. "approx" returns the
// offline estimator; "" selects DefaultEncoding.
func New(encodingName string) (domain.Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(encodingName)) {
	case Approximate:
		return Approx{}, nil
	case "":
		return NewTikToken(DefaultEncoding)
	}
	return NewTikToken(encodingName)
}

// TikToken wraps tiktoken-go to implement domain.Tokenizer.
type TikToken struct {
	name     string
	encoding *tiktoken.Tiktoken
}

// NewTikToken creates a new TikToken tokenizer with the given encoding name.
// Common encodings: "cl100k_base", "o200k_base". The BPE ranks are fetched on
// first use unless TIKTOKEN_CACHE_DIR holds them.
func NewTikToken(encodingName string) (*TikToken, error) {
	enc, err := getEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: unknown encoding %q: %w", encodingName, err)
	}
	return &TikToken{name: encodingName, encoding: enc}, nil
}

// Name returns the encoding name.
func (t *TikToken) Name() string { return t.name }

// CountTokens returns the number of tokens in the given text.
func (t *TikToken) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(t.encoding.Encode(text, nil, nil)), nil
}

// Approx estimates one token per four bytes, rounding up. JSON schema text is
// dense in punctuation, so this tracks cl100k within a small factor.
type Approx struct{}

// CountTokens returns the estimate for text.
func (Approx) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	if !utf8.ValidString(text) {
		return 0, fmt.Errorf("tokenizer: text is not valid UTF-8")
	}
	return (len(text) + 3) / 4, nil
}

// getEncoding is a hook so tests can avoid network access.
var getEncoding = tiktoken.GetEncoding
