package chunking

import "strings"

// Tokenizer turns text into a token list. Token count (len of the returned
// slice) is what chunk-size and blurb-size budgets are measured against.
// A real deployment would back this with a model-specific tokenizer; the
// whitespace tokenizer here is the deterministic default used in tests and
// local runs.
type Tokenizer interface {
	Tokenize(text string) []string
}

// WhitespaceTokenizer splits on runs of whitespace. It undercounts relative
// to a BPE tokenizer but is stable across platforms, which is what the test
// suite needs.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

func tokenCount(tok Tokenizer, text string) int {
	if text == "" {
		return 0
	}
	return len(tok.Tokenize(text))
}
