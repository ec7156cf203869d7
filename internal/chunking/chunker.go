package chunking

import (
	"fmt"
	"strings"

	"docsearch/internal/docmodel"
)

// Config holds the token-budget tunables the chunker is built against.
type Config struct {
	ChunkTokens        int
	ChunkOverlapTokens int
	BlurbTokens        int
	MiniChunkTokens    int
}

// DefaultConfig mirrors the defaults carried by the Python lineage of this
// chunker (512-token chunks, 64-token blurbs, 128-token mini-chunks).
func DefaultConfig() Config {
	return Config{
		ChunkTokens:        512,
		ChunkOverlapTokens: 64,
		BlurbTokens:        64,
		MiniChunkTokens:    128,
	}
}

// Chunker splits a Document into token-budget-bounded Chunks.
type Chunker interface {
	Chunk(doc docmodel.Document) ([]docmodel.Chunk, error)
}

// DefaultChunker implements the section-buffering algorithm: sections are
// accumulated into a chunk until the next section would overflow the token
// budget, at which point the buffer flushes and a new one starts. A section
// that alone exceeds the budget is never merged with neighbors; it is split
// on its own via the sentence splitter, with every piece after the first
// marked as a continuation of the same section.
type DefaultChunker struct {
	Tokenizer        Tokenizer
	SentenceSplitter SentenceSplitter
	Config           Config
}

func NewDefaultChunker(tok Tokenizer, splitter SentenceSplitter, cfg Config) *DefaultChunker {
	if tok == nil {
		tok = WhitespaceTokenizer{}
	}
	if splitter == nil {
		splitter = NewDefaultSentenceSplitter(tok)
	}
	return &DefaultChunker{Tokenizer: tok, SentenceSplitter: splitter, Config: cfg}
}

func (c *DefaultChunker) Chunk(doc docmodel.Document) ([]docmodel.Chunk, error) {
	if !doc.UTC() {
		return nil, fmt.Errorf("chunk document %s: doc_updated_at is not UTC", doc.ID)
	}

	var chunks []docmodel.Chunk
	var buf strings.Builder
	var links []docmodel.SourceLink
	chunkInd := 0

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		text := buf.String()
		chunks = append(chunks, c.buildChunk(doc, text, links, chunkInd, false))
		chunkInd++
		buf.Reset()
		links = nil
	}

	for _, section := range doc.Sections {
		if strings.TrimSpace(section.Text) == "" {
			// An empty section contributes no tokens and no source-link
			// offset; including it would emit a SourceLink pointing at
			// the same buffer offset as the next non-empty section,
			// breaking the strictly-increasing offset invariant.
			continue
		}

		secTokens := tokenCount(c.Tokenizer, section.Text)

		if secTokens > c.Config.ChunkTokens {
			flush()
			pieces := c.SentenceSplitter.Split(section.Text, c.Config.ChunkTokens, c.Config.ChunkOverlapTokens)
			for i, piece := range pieces {
				ch := c.buildChunk(doc, piece, []docmodel.SourceLink{{Offset: 0, Link: section.Link}}, chunkInd, i != 0)
				chunks = append(chunks, ch)
				chunkInd++
			}
			continue
		}

		curTokens := tokenCount(c.Tokenizer, buf.String())
		if buf.Len() > 0 && curTokens+secTokens > c.Config.ChunkTokens {
			flush()
		}

		links = append(links, docmodel.SourceLink{Offset: buf.Len(), Link: section.Link})
		buf.WriteString(section.Text)
	}
	flush()

	return chunks, nil
}

func (c *DefaultChunker) buildChunk(doc docmodel.Document, text string, links []docmodel.SourceLink, ind int, continuation bool) docmodel.Chunk {
	return docmodel.Chunk{
		Source:              docmodel.DocumentRef{ID: doc.ID},
		ChunkID:             ind,
		Blurb:               c.extractBlurb(text),
		Content:             text,
		SourceLinks:         links,
		SectionContinuation: continuation,
		MiniChunkTexts:      c.splitMiniChunks(text),
	}
}

// extractBlurb returns a short, budget-bounded preview of chunk text. It is
// stored in the engine's blurb field and returned as-is by result decoding.
func (c *DefaultChunker) extractBlurb(text string) string {
	pieces := c.SentenceSplitter.Split(text, c.Config.BlurbTokens, 0)
	if len(pieces) == 0 {
		return ""
	}
	return pieces[0]
}

// splitMiniChunks further divides chunk text into smaller pieces so a caller
// can embed more than one vector per chunk. Returns nil when the chunk
// already fits within one mini-chunk, since duplicating it would add an
// embedding call for no retrieval benefit.
func (c *DefaultChunker) splitMiniChunks(text string) []string {
	if tokenCount(c.Tokenizer, text) <= c.Config.MiniChunkTokens {
		return nil
	}
	return c.SentenceSplitter.Split(text, c.Config.MiniChunkTokens, 0)
}
