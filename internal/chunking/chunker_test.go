package chunking

import (
	"strings"
	"testing"
	"time"

	"docsearch/internal/docmodel"

	"github.com/stretchr/testify/require"
)

func newTestChunker(chunkTokens, overlapTokens, blurbTokens, miniTokens int) *DefaultChunker {
	tok := WhitespaceTokenizer{}
	return NewDefaultChunker(tok, NewDefaultSentenceSplitter(tok), Config{
		ChunkTokens:        chunkTokens,
		ChunkOverlapTokens: overlapTokens,
		BlurbTokens:        blurbTokens,
		MiniChunkTokens:    miniTokens,
	})
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}

func TestChunkDocument_RespectsTokenBudget(t *testing.T) {
	c := newTestChunker(50, 5, 10, 1000)
	doc := docmodel.Document{
		ID: "doc-1",
		Sections: []docmodel.Section{
			{Text: words(30), Link: "s1"},
			{Text: words(30), Link: "s2"},
			{Text: words(30), Link: "s3"},
		},
	}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		require.LessOrEqual(t, tokenCount(WhitespaceTokenizer{}, ch.Content), 50)
	}
}

func TestChunkDocument_CoversAllSectionText(t *testing.T) {
	c := newTestChunker(50, 5, 10, 1000)
	doc := docmodel.Document{
		ID: "doc-1",
		Sections: []docmodel.Section{
			{Text: "alpha beta gamma", Link: "s1"},
			{Text: "delta epsilon zeta", Link: "s2"},
		},
	}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)

	var combined strings.Builder
	for _, ch := range chunks {
		combined.WriteString(ch.Content)
	}
	for _, word := range []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"} {
		require.Contains(t, combined.String(), word)
	}
}

func TestChunkDocument_OversizedSectionSplitsAlone(t *testing.T) {
	c := newTestChunker(20, 0, 5, 1000)
	big := strings.Repeat("sentence number filler text here. ", 20)
	doc := docmodel.Document{
		ID: "doc-1",
		Sections: []docmodel.Section{
			{Text: "small lead in section", Link: "lead"},
			{Text: big, Link: "big"},
		},
	}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	// The lead section must not be merged into the oversized section's
	// continuation chunks.
	require.False(t, chunks[0].SectionContinuation)
	require.Contains(t, chunks[0].Content, "small lead in section")

	foundContinuation := false
	for _, ch := range chunks[1:] {
		if ch.SectionContinuation {
			foundContinuation = true
		}
	}
	require.True(t, foundContinuation, "expected at least one continuation chunk from the oversized section")
}

func TestChunkDocument_LinkOffsetsAreMonotonic(t *testing.T) {
	c := newTestChunker(1000, 0, 10, 1000)
	doc := docmodel.Document{
		ID: "doc-1",
		Sections: []docmodel.Section{
			{Text: "first section text ", Link: "a"},
			{Text: "second section text ", Link: "b"},
			{Text: "third section text", Link: "c"},
		},
	}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	offsets := chunks[0].SourceLinks
	require.Len(t, offsets, 3)
	for i := 1; i < len(offsets); i++ {
		require.Greater(t, offsets[i].Offset, offsets[i-1].Offset)
	}
}

func TestChunkDocument_SkipsEmptySections(t *testing.T) {
	c := newTestChunker(1000, 0, 10, 1000)
	doc := docmodel.Document{
		ID: "doc-1",
		Sections: []docmodel.Section{
			{Text: "first section text ", Link: "a"},
			{Text: "   ", Link: "empty"},
			{Text: "", Link: "also-empty"},
			{Text: "second section text", Link: "b"},
		},
	}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	offsets := chunks[0].SourceLinks
	require.Len(t, offsets, 2, "empty sections contribute no source link")
	for i := 1; i < len(offsets); i++ {
		require.Greater(t, offsets[i].Offset, offsets[i-1].Offset)
	}
	require.NotContains(t, chunks[0].Content, "empty")
}

func TestChunkDocument_RejectsNonUTCTimestamp(t *testing.T) {
	c := newTestChunker(50, 5, 10, 1000)
	loc := time.FixedZone("EST", -5*60*60)
	ts := time.Now().In(loc)
	doc := docmodel.Document{
		ID:           "doc-1",
		Sections:     []docmodel.Section{{Text: "hello world"}},
		DocUpdatedAt: &ts,
	}

	_, err := c.Chunk(doc)
	require.Error(t, err)
}
