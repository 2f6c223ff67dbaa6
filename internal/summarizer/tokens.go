package summarizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter approximates the number of model tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// EstimateTokens approximates the token count of text as ceil(len(text)/4).
// The empty string estimates to zero.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// HeuristicCounter estimates tokens from byte length. It is the default
// counter: cheap, dependency-free, and close enough for budget checks.
type HeuristicCounter struct{}

// Count implements TokenCounter
func (HeuristicCounter) Count(text string) int {
	return EstimateTokens(text)
}

// TiktokenCounter counts tokens with a real tokenizer vocabulary. Slower
// than the heuristic but exact for OpenAI models.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given encoding name,
// e.g. "cl100k_base".
func NewTiktokenCounter(encodingName string) (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %q: %w", encodingName, err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

// Count implements TokenCounter
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}
