package chunking

import (
	"strings"
)

// SentenceSplitter packs sentence-like units into token-bounded pieces with
// a token-budgeted overlap of whole sentences between consecutive pieces. It
// is the only place that owns the irreducible "single sentence bigger than
// the budget" edge case: such a sentence is never cut mid-word. It is emitted
// whole, as its own piece, unless overlap sentences carried from the previous
// piece precede it in the same piece.
type SentenceSplitter interface {
	Split(text string, chunkTokens, overlapTokens int) []string
}

// DefaultSentenceSplitter splits text on sentence-ending punctuation and
// greedily packs the resulting sentences into pieces bounded by chunkTokens,
// carrying overlapTokens worth of trailing sentences into the next piece.
// Mirrors the role of llama_index's SentenceSplitter in the Python lineage
// this package is descended from.
type DefaultSentenceSplitter struct {
	Tokenizer Tokenizer
}

func NewDefaultSentenceSplitter(tok Tokenizer) *DefaultSentenceSplitter {
	if tok == nil {
		tok = WhitespaceTokenizer{}
	}
	return &DefaultSentenceSplitter{Tokenizer: tok}
}

func (s *DefaultSentenceSplitter) Split(text string, chunkTokens, overlapTokens int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	if chunkTokens <= 0 {
		chunkTokens = 1
	}

	var pieces []string
	var cur []string
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		pieces = append(pieces, strings.Join(cur, " "))
	}

	for _, sent := range sentences {
		n := tokenCount(s.Tokenizer, sent)
		if n > chunkTokens && len(cur) == 0 {
			// A single sentence exceeds the budget on its own: emit it
			// whole rather than fragment it further.
			pieces = append(pieces, sent)
			continue
		}
		if curTokens+n > chunkTokens && len(cur) > 0 {
			flush()
			cur = carryOverlap(cur, overlapTokens, s.Tokenizer)
			curTokens = tokenCount(s.Tokenizer, strings.Join(cur, " "))
		}
		cur = append(cur, sent)
		curTokens += n
	}
	flush()
	return pieces
}

// carryOverlap keeps trailing sentences from the just-flushed piece, up to
// overlapTokens worth, to seed the next piece. The last sentence is always
// kept, even when it alone exceeds overlapTokens.
func carryOverlap(prev []string, overlapTokens int, tok Tokenizer) []string {
	if overlapTokens <= 0 || len(prev) == 0 {
		return nil
	}
	var kept []string
	total := 0
	for i := len(prev) - 1; i >= 0; i-- {
		n := tokenCount(tok, prev[i])
		if total+n > overlapTokens && len(kept) > 0 {
			break
		}
		kept = append([]string{prev[i]}, kept...)
		total += n
	}
	return kept
}

// splitSentences breaks text on '.', '!', '?' followed by whitespace, while
// keeping the terminator attached to its sentence. A naive splitter: no
// abbreviation handling, matching the scope the chunker actually needs
// (packing, not linguistic sentence boundary detection).
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '.' || c == '!' || c == '?' {
			end := i + 1
			if end >= len(runes) || runes[end] == ' ' || runes[end] == '\n' || runes[end] == '\t' {
				sent := strings.TrimSpace(string(runes[start:end]))
				if sent != "" {
					sentences = append(sentences, sent)
				}
				start = end
			}
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
